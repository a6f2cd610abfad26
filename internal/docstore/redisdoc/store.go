// Package redisdoc implements docstore.Store on Redis. Documents are JSON
// strings, every collection keeps a member set and a revision counter, and
// indexed fields keep one set of ids per value. Transactions are optimistic:
// reads WATCH what they touch and the buffered writes commit in MULTI/EXEC.
package redisdoc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"threadline/internal/docstore"
	"threadline/internal/observability"

	"github.com/redis/go-redis/v9"
)

const backendName = "redis"

// Options configures a Store.
type Options struct {
	// Prefix is prepended to every key the store writes.
	Prefix string
	// MaxAttempts bounds transaction retries; zero uses docstore.DefaultMaxAttempts.
	MaxAttempts int
	// Indexes lists the fields served from reverse-index sets.
	Indexes docstore.IndexSpec
}

// Store is a Redis-backed document store.
type Store struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
	indexes     docstore.IndexSpec
}

var _ docstore.Store = (*Store)(nil)

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if countable(err) {
			observability.RedisErrorRate.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if countable(err) {
			observability.RedisErrorRate.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

func countable(err error) bool {
	return err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, redis.TxFailedErr)
}

// Open connects to addr, which is either host:port or a redis:// URL, and
// verifies the connection.
func Open(ctx context.Context, addr string, opts Options) (*Store, error) {
	var ropts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redisdoc: invalid redis url %q: %w", addr, err)
		}
		ropts = parsed
	} else {
		ropts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(ropts)
	s := New(client, opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	observability.Logger.InfoContext(ctx, "redis document store connected", "addr", ropts.Addr)
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client, opts Options) *Store {
	client.AddHook(metricsHook{})
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = docstore.DefaultMaxAttempts
	}
	return &Store{
		client:      client,
		prefix:      opts.Prefix,
		maxAttempts: maxAttempts,
		indexes:     opts.Indexes,
	}
}

func (s *Store) docKey(collection, id string) string {
	return s.prefix + "doc:" + collection + ":" + id
}

func (s *Store) colKey(collection string) string {
	return s.prefix + "col:" + collection
}

func (s *Store) revKey(collection string) string {
	return s.prefix + "rev:" + collection
}

func (s *Store) idxKey(collection string, e docstore.IndexEntry) string {
	return s.prefix + "idx:" + collection + ":" + e.Field + ":" + e.Value
}

// Get returns the committed document.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Snapshot, error) {
	defer observability.TrackStoreOperation(backendName, "get")()
	ctx, span := observability.StartStoreSpan(ctx, backendName, "get", collection)
	data, exists, err := s.load(ctx, s.client, docstore.Key{Collection: collection, ID: id})
	if err == nil && !exists {
		err = docstore.ErrNotFound
	}
	span.End(ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &docstore.Snapshot{Collection: collection, ID: id, Data: data}, nil
}

// Query runs q against committed state.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	defer observability.TrackStoreOperation(backendName, "query")()
	ctx, span := observability.StartStoreSpan(ctx, backendName, "query", q.Collection)
	prepared, err := q.Prepare()
	if err != nil {
		span.End(err)
		return nil, err
	}
	out, err := s.query(ctx, s.client, prepared, nil)
	span.End(err)
	return out, err
}

func (s *Store) Create(ctx context.Context, collection, id string, data any) error {
	return docstore.Direct{Store: s}.Create(ctx, collection, id, data)
}

func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	return docstore.Direct{Store: s}.Set(ctx, collection, id, data)
}

func (s *Store) Update(ctx context.Context, collection, id string, updates ...docstore.Update) error {
	return docstore.Direct{Store: s}.Update(ctx, collection, id, updates...)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return docstore.Direct{Store: s}.Delete(ctx, collection, id)
}

// Batch returns a write batch committed as one transaction.
func (s *Store) Batch() docstore.Batch {
	return docstore.NewBatch(s)
}

// RunTransaction runs fn with optimistic concurrency, retrying when a
// watched key changes before commit.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	defer observability.TrackStoreOperation(backendName, "transaction")()
	ctx, span := observability.StartStoreSpan(ctx, backendName, "transaction", "")
	err := docstore.Retry(ctx, s.maxAttempts, func(ctx context.Context) error {
		return s.attempt(ctx, fn)
	}, observability.TxObserver(backendName))
	span.End(err)
	return err
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		a := docstore.NewAttempt(
			func(key docstore.Key) (map[string]any, bool, error) {
				if err := rtx.Watch(ctx, s.docKey(key.Collection, key.ID)).Err(); err != nil {
					return nil, false, err
				}
				return s.load(ctx, rtx, key)
			},
			func(q docstore.Query) ([]*docstore.Snapshot, error) {
				return s.query(ctx, rtx, q, func(keys ...string) error {
					return rtx.Watch(ctx, keys...).Err()
				})
			},
		)
		if err := fn(ctx, a); err != nil {
			return err
		}
		changes := a.Changes()
		if len(changes) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.queueChanges(ctx, pipe, changes)
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return docstore.ErrAborted
	}
	return err
}

func (s *Store) queueChanges(ctx context.Context, pipe redis.Pipeliner, changes []docstore.Change) error {
	touched := map[string]struct{}{}
	for _, c := range changes {
		col, id := c.Key.Collection, c.Key.ID
		if c.After == nil {
			pipe.Del(ctx, s.docKey(col, id))
			pipe.SRem(ctx, s.colKey(col), id)
		} else {
			raw, err := docstore.Marshal(c.After)
			if err != nil {
				return fmt.Errorf("redisdoc: encode %s/%s: %w", col, id, err)
			}
			pipe.Set(ctx, s.docKey(col, id), raw, 0)
			pipe.SAdd(ctx, s.colKey(col), id)
		}
		removed, added := docstore.DiffEntries(s.indexes.Entries(col, c.Before), s.indexes.Entries(col, c.After))
		for _, e := range removed {
			pipe.SRem(ctx, s.idxKey(col, e), id)
		}
		for _, e := range added {
			pipe.SAdd(ctx, s.idxKey(col, e), id)
		}
		touched[col] = struct{}{}
	}
	for col := range touched {
		pipe.Incr(ctx, s.revKey(col))
	}
	return nil
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, key docstore.Key) (map[string]any, bool, error) {
	raw, err := c.Get(ctx, s.docKey(key.Collection, key.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisdoc: get %s/%s: %w", key.Collection, key.ID, err)
	}
	data, err := docstore.Unmarshal(raw)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// query resolves candidate ids from the index sets when the query filters
// on an indexed field, and from the collection set otherwise.
//
// Inside a transaction guard WATCHes what decides the result before it is
// read: the index sets and every candidate document for an indexed query,
// the collection revision for a scan. Writes elsewhere in the collection
// then leave an indexed query's attempt alone.
func (s *Store) query(ctx context.Context, c redis.Cmdable, q docstore.Query, guard func(keys ...string) error) ([]*docstore.Snapshot, error) {
	if guard == nil {
		guard = func(...string) error { return nil }
	}
	var (
		ids []string
		err error
	)
	terms := s.indexes.Terms(q)
	if len(terms) > 0 {
		keys := make([]string, len(terms))
		for i, t := range terms {
			keys[i] = s.idxKey(q.Collection, t)
		}
		if err := guard(keys...); err != nil {
			return nil, err
		}
		ids, err = c.SInter(ctx, keys...).Result()
	} else {
		if err := guard(s.revKey(q.Collection)); err != nil {
			return nil, err
		}
		ids, err = c.SMembers(ctx, s.colKey(q.Collection)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redisdoc: query %s: %w", q.Collection, err)
	}
	if len(ids) == 0 {
		return []*docstore.Snapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(q.Collection, id)
	}
	if len(terms) > 0 {
		if err := guard(keys...); err != nil {
			return nil, err
		}
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisdoc: query %s: %w", q.Collection, err)
	}

	candidates := make([]*docstore.Snapshot, 0, len(ids))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		data, err := docstore.Unmarshal([]byte(raw))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, &docstore.Snapshot{Collection: q.Collection, ID: ids[i], Data: data})
	}
	return q.Apply(candidates), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisdoc: ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection for components that share it.
func (s *Store) Client() *redis.Client {
	return s.client
}

func ignoreNotFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}
