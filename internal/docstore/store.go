// Package docstore defines the schemaless document store the engine runs on
// and the pieces shared by its backends: query matching, update application,
// secondary-index bookkeeping and the per-attempt transaction overlay.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// MaxBatchSize bounds the number of writes a single Batch may commit.
const MaxBatchSize = 500

// DefaultMaxAttempts is the transaction retry budget used when a backend is
// not configured with one.
const DefaultMaxAttempts = 5

// Store is a collection-oriented document database with single-attempt
// optimistic transactions that the backend retries on conflict.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	Create(ctx context.Context, collection, id string, data any) error
	Set(ctx context.Context, collection, id string, data any) error
	Update(ctx context.Context, collection, id string, updates ...Update) error
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn until it commits without conflict or the retry
	// budget is spent. fn may be invoked more than once and must not have
	// side effects outside tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Batch() Batch
	Ping(ctx context.Context) error
	Close() error
}

// Tx is one attempt of a transaction. Reads must happen before writes.
type Tx interface {
	Get(collection, id string) (*Snapshot, error)
	Query(q Query) ([]*Snapshot, error)
	Create(collection, id string, data any) error
	Set(collection, id string, data any) error
	Update(collection, id string, updates ...Update) error
	Delete(collection, id string) error
}

// Batch buffers writes and commits them atomically, without reads.
type Batch interface {
	Set(collection, id string, data any) Batch
	Update(collection, id string, updates ...Update) Batch
	Delete(collection, id string) Batch
	Len() int
	Commit(ctx context.Context) error
}

// Snapshot is a point-in-time copy of one document.
type Snapshot struct {
	Collection string
	ID         string
	Data       map[string]any
}

// DataTo decodes the document into v, which must be a pointer.
func (s *Snapshot) DataTo(v any) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", s.Collection, s.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", s.Collection, s.ID, err)
	}
	return nil
}

// SubCollection names a collection nested under a parent document.
func SubCollection(parent, parentID, name string) string {
	return parent + "/" + parentID + "/" + name
}
