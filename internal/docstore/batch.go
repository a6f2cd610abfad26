package docstore

import (
	"context"
	"fmt"
)

type batchOp func(tx Tx) error

type batch struct {
	store Store
	ops   []batchOp
}

// NewBatch returns a Batch that commits as one transaction on store.
// Updates of missing documents fail the whole batch with ErrNotFound.
func NewBatch(store Store) Batch {
	return &batch{store: store}
}

func (b *batch) Set(collection, id string, data any) Batch {
	b.ops = append(b.ops, func(tx Tx) error { return tx.Set(collection, id, data) })
	return b
}

func (b *batch) Update(collection, id string, updates ...Update) Batch {
	b.ops = append(b.ops, func(tx Tx) error { return tx.Update(collection, id, updates...) })
	return b
}

func (b *batch) Delete(collection, id string) Batch {
	b.ops = append(b.ops, func(tx Tx) error { return tx.Delete(collection, id) })
	return b
}

func (b *batch) Len() int {
	return len(b.ops)
}

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) > MaxBatchSize {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(b.ops))
	}
	if len(b.ops) == 0 {
		return nil
	}
	return b.store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		for _, op := range b.ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Direct adapts single-document writes onto RunTransaction so backends share
// one commit path for transactional and plain writes.
type Direct struct {
	Store Store
}

func (d Direct) Create(ctx context.Context, collection, id string, data any) error {
	return d.Store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Create(collection, id, data)
	})
}

func (d Direct) Set(ctx context.Context, collection, id string, data any) error {
	return d.Store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Set(collection, id, data)
	})
}

func (d Direct) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return d.Store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Update(collection, id, updates...)
	})
}

func (d Direct) Delete(ctx context.Context, collection, id string) error {
	return d.Store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Delete(collection, id)
	})
}
