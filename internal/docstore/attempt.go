package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// QueryFunc runs a prepared query against committed state for one attempt,
// registering whatever the backend needs to detect phantom writes.
type QueryFunc func(q Query) ([]*Snapshot, error)

// Attempt is the Tx handed to a transaction body; backends supply the reads
// and commit its Changes.
type Attempt struct {
	overlay *Overlay
	query   QueryFunc
}

// NewAttempt builds a Tx over backend read functions.
func NewAttempt(load Loader, query QueryFunc) *Attempt {
	return &Attempt{overlay: NewOverlay(load), query: query}
}

// Changes returns the buffered writes to commit.
func (a *Attempt) Changes() []Change {
	return a.overlay.Changes()
}

func (a *Attempt) Get(collection, id string) (*Snapshot, error) {
	data, exists, err := a.overlay.Read(Key{Collection: collection, ID: id})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return &Snapshot{Collection: collection, ID: id, Data: data}, nil
}

func (a *Attempt) Query(q Query) ([]*Snapshot, error) {
	if err := a.overlay.CheckRead(); err != nil {
		return nil, err
	}
	prepared, err := q.Prepare()
	if err != nil {
		return nil, err
	}
	return a.query(prepared)
}

func (a *Attempt) Create(collection, id string, data any) error {
	doc, err := Encode(data)
	if err != nil {
		return err
	}
	return a.overlay.Create(Key{Collection: collection, ID: id}, doc)
}

func (a *Attempt) Set(collection, id string, data any) error {
	doc, err := Encode(data)
	if err != nil {
		return err
	}
	return a.overlay.Set(Key{Collection: collection, ID: id}, doc)
}

func (a *Attempt) Update(collection, id string, updates ...Update) error {
	return a.overlay.Update(Key{Collection: collection, ID: id}, updates)
}

func (a *Attempt) Delete(collection, id string) error {
	return a.overlay.Delete(Key{Collection: collection, ID: id})
}

// newRetryBackOff spaces out attempts that lost a race so contenders on one
// document stop colliding in lockstep.
var newRetryBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = time.Second
	return b
}

// Retry runs attempt until it returns something other than ErrAborted, at
// most maxAttempts times, then gives up with ErrConflict. Aborted attempts
// wait an exponentially growing, jittered interval before the next one.
// observe receives "committed", "aborted", "exhausted" or "error" per
// attempt outcome.
func Retry(ctx context.Context, maxAttempts int, attempt func(ctx context.Context) error, observe func(outcome string)) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if observe == nil {
		observe = func(string) {}
	}
	bo := newRetryBackOff()
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt(ctx)
		switch {
		case err == nil:
			observe("committed")
			return nil
		case errors.Is(err, ErrAborted):
			observe("aborted")
		default:
			observe("error")
			return err
		}
		if i+1 < maxAttempts && !sleepContext(ctx, bo.NextBackOff()) {
			return ctx.Err()
		}
	}
	observe("exhausted")
	return fmt.Errorf("%w after %d attempts", ErrConflict, maxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
