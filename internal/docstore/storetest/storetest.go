// Package storetest holds the behavioural suite every docstore backend runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"threadline/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Collection is the collection the suite writes to.
const Collection = "items"

// Indexes is the IndexSpec a backend under test must be opened with.
var Indexes = docstore.IndexSpec{
	Collection: {"owner", "tags"},
}

// MinAttempts is the smallest retry budget the concurrency cases need.
const MinAttempts = 10

type item struct {
	Owner string   `json:"owner"`
	Tags  []string `json:"tags"`
	Rank  int      `json:"rank"`
	Note  string   `json:"note,omitempty"`
}

// Run exercises open's store. open must return an empty store configured
// with Indexes and a retry budget of at least MinAttempts.
func Run(t *testing.T, open func(t *testing.T) docstore.Store) {
	ctx := context.Background()

	t.Run("create get and duplicate create", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, Collection, "a", item{Owner: "u1", Rank: 1}))

		snap, err := s.Get(ctx, Collection, "a")
		require.NoError(t, err)
		var got item
		require.NoError(t, snap.DataTo(&got))
		assert.Equal(t, "u1", got.Owner)
		assert.Equal(t, 1, got.Rank)

		err = s.Create(ctx, Collection, "a", item{Owner: "u2"})
		assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	})

	t.Run("missing documents", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, Collection, "nope")
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		err = s.Update(ctx, Collection, "nope", docstore.Field("rank", 2))
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		assert.NoError(t, s.Delete(ctx, Collection, "nope"))
	})

	t.Run("update fields and arrays", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, Collection, "a", item{Owner: "u1", Tags: []string{"x"}}))
		require.NoError(t, s.Update(ctx, Collection, "a",
			docstore.Field("rank", 7),
			docstore.ArrayUnion("tags", "x", "y"),
		))
		require.NoError(t, s.Update(ctx, Collection, "a", docstore.ArrayRemove("tags", "x")))

		snap, err := s.Get(ctx, Collection, "a")
		require.NoError(t, err)
		var got item
		require.NoError(t, snap.DataTo(&got))
		assert.Equal(t, 7, got.Rank)
		assert.Equal(t, []string{"y"}, got.Tags)
	})

	t.Run("query filters order and limit", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{
			"a": {Owner: "u1", Tags: []string{"red"}, Rank: 3},
			"b": {Owner: "u1", Tags: []string{"blue"}, Rank: 1},
			"c": {Owner: "u2", Tags: []string{"red", "blue"}, Rank: 2},
			"d": {Owner: "u1", Tags: []string{"red"}, Rank: 2, Note: "n"},
		})

		got, err := s.Query(ctx, docstore.From(Collection).Where("owner", docstore.OpEqual, "u1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "d"}, ids(got))

		got, err = s.Query(ctx, docstore.From(Collection).
			Where("tags", docstore.OpArrayContains, "red").
			OrderBy("rank", docstore.Desc).
			Limit(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids(got))

		got, err = s.Query(ctx, docstore.From(Collection).
			Where("owner", docstore.OpEqual, "u1").
			Where("tags", docstore.OpArrayContains, "red"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "d"}, ids(got))

		// note is not indexed
		got, err = s.Query(ctx, docstore.From(Collection).Where("note", docstore.OpEqual, "n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, ids(got))

		got, err = s.Query(ctx, docstore.From(Collection).Where("owner", docstore.OpEqual, "ghost"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("index follows updates and deletes", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{
			"a": {Owner: "u1", Tags: []string{"red"}},
			"b": {Owner: "u1", Tags: []string{"red"}},
		})
		require.NoError(t, s.Update(ctx, Collection, "a",
			docstore.Field("owner", "u2"),
			docstore.ArrayRemove("tags", "red"),
		))
		require.NoError(t, s.Delete(ctx, Collection, "b"))

		got, err := s.Query(ctx, docstore.From(Collection).Where("owner", docstore.OpEqual, "u1"))
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Query(ctx, docstore.From(Collection).Where("tags", docstore.OpArrayContains, "red"))
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Query(ctx, docstore.From(Collection).Where("owner", docstore.OpEqual, "u2"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(got))
	})

	t.Run("transaction reads must precede writes", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{"a": {Owner: "u1"}})

		err := s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
			if err := tx.Set(Collection, "b", item{Owner: "u1"}); err != nil {
				return err
			}
			_, err := tx.Get(Collection, "a")
			return err
		})
		assert.ErrorIs(t, err, docstore.ErrReadAfterWrite)

		_, err = s.Get(ctx, Collection, "b")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("failed transaction writes nothing", func(t *testing.T) {
		s := open(t)
		boom := errors.New("boom")
		err := s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
			if err := tx.Set(Collection, "a", item{Owner: "u1"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, Collection, "a")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("transaction commits multiple documents", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{"a": {Owner: "u1", Rank: 1}})

		err := s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
			snap, err := tx.Get(Collection, "a")
			if err != nil {
				return err
			}
			var a item
			if err := snap.DataTo(&a); err != nil {
				return err
			}
			if err := tx.Update(Collection, "a", docstore.Field("rank", a.Rank+1)); err != nil {
				return err
			}
			if err := tx.Create(Collection, "b", item{Owner: "u1", Rank: a.Rank}); err != nil {
				return err
			}
			return tx.Delete(Collection, "missing")
		})
		require.NoError(t, err)

		got, err := s.Query(ctx, docstore.From(Collection).OrderBy("rank", docstore.Asc))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids(got))
	})

	t.Run("batch commit and size limit", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{"a": {Owner: "u1"}})

		b := s.Batch().
			Set(Collection, "b", item{Owner: "u2"}).
			Update(Collection, "a", docstore.Field("rank", 5)).
			Delete(Collection, "zzz")
		assert.Equal(t, 3, b.Len())
		require.NoError(t, b.Commit(ctx))

		got, err := s.Query(ctx, docstore.From(Collection))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(got))

		big := s.Batch()
		for i := 0; i <= docstore.MaxBatchSize; i++ {
			big.Delete(Collection, fmt.Sprintf("x%d", i))
		}
		assert.ErrorIs(t, big.Commit(ctx), docstore.ErrBatchTooLarge)

		assert.NoError(t, s.Batch().Commit(ctx))
	})

	t.Run("indexed query is guarded by its terms", func(t *testing.T) {
		tests := []struct {
			name      string
			meanwhile func(t *testing.T, s docstore.Store)
			wantCalls int
		}{
			{
				name: "write under another term",
				meanwhile: func(t *testing.T, s docstore.Store) {
					require.NoError(t, s.Set(ctx, Collection, "other", item{Owner: "u2"}))
				},
				wantCalls: 1,
			},
			{
				name: "document joins the result",
				meanwhile: func(t *testing.T, s docstore.Store) {
					require.NoError(t, s.Set(ctx, Collection, "joiner", item{Owner: "u1"}))
				},
				wantCalls: 2,
			},
			{
				name: "candidate content changes",
				meanwhile: func(t *testing.T, s docstore.Store) {
					require.NoError(t, s.Update(ctx, Collection, "a", docstore.Field("rank", 9)))
				},
				wantCalls: 2,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := open(t)
				seed(t, s, map[string]item{"a": {Owner: "u1", Rank: 1}})

				calls := 0
				err := s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
					calls++
					found, err := tx.Query(docstore.From(Collection).Where("owner", docstore.OpEqual, "u1"))
					if err != nil {
						return err
					}
					if calls == 1 {
						tt.meanwhile(t, s)
					}
					return tx.Set(Collection, "summary", item{Owner: "summary", Rank: len(found)})
				})
				require.NoError(t, err)
				assert.Equal(t, tt.wantCalls, calls)
			})
		}
	})

	t.Run("scan is guarded by the whole collection", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{"a": {Owner: "u1", Rank: 1}})

		calls := 0
		err := s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
			calls++
			if _, err := tx.Query(docstore.From(Collection).Where("rank", docstore.OpEqual, 1)); err != nil {
				return err
			}
			if calls == 1 {
				require.NoError(t, s.Set(ctx, Collection, "other", item{Owner: "u2"}))
			}
			return tx.Set(Collection, "summary", item{Owner: "summary"})
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("concurrent read-modify-write loses no update", func(t *testing.T) {
		s := open(t)
		seed(t, s, map[string]item{"counter": {Owner: "u1"}})

		const workers = 8
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				return s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
					snap, err := tx.Get(Collection, "counter")
					if err != nil {
						return err
					}
					var c item
					if err := snap.DataTo(&c); err != nil {
						return err
					}
					return tx.Update(Collection, "counter", docstore.Field("rank", c.Rank+1))
				})
			})
		}
		require.NoError(t, g.Wait())

		snap, err := s.Get(ctx, Collection, "counter")
		require.NoError(t, err)
		var c item
		require.NoError(t, snap.DataTo(&c))
		assert.Equal(t, workers, c.Rank)
	})

	t.Run("concurrent creates of one id admit exactly one", func(t *testing.T) {
		s := open(t)

		const workers = 6
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			won    int
			exists int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
					return tx.Create(Collection, "shared", item{Owner: fmt.Sprintf("u%d", i)})
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					won++
				case errors.Is(err, docstore.ErrAlreadyExists):
					exists++
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, won)
		assert.Equal(t, workers-1, exists)
	})
}

func seed(t *testing.T, s docstore.Store, docs map[string]item) {
	t.Helper()
	b := s.Batch()
	for id, d := range docs {
		b.Set(Collection, id, d)
	}
	require.NoError(t, b.Commit(context.Background()))
}

func ids(snaps []*docstore.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}
