// Package sqldoc implements docstore.Store on a relational database through
// GORM. Each document is a versioned JSON row; index entries and revision
// counters, one per collection and one per indexed (field, value), live in
// side tables written in the same database transaction as the documents. Transaction bodies run against
// committed rows and their writes are applied only if nothing they read has
// moved in the meantime.
package sqldoc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"threadline/internal/docstore"
	"threadline/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const backendName = "sql"

// errStale marks a conditional write that matched no row.
var errStale = errors.New("sqldoc: stale read")

type documentRow struct {
	Collection string `gorm:"primaryKey;size:255"`
	ID         string `gorm:"primaryKey;size:255"`
	Data       string `gorm:"type:text;not null"`
	Version    int64  `gorm:"not null"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type indexRow struct {
	Collection string `gorm:"primaryKey;size:255"`
	Field      string `gorm:"primaryKey;size:255"`
	Value      string `gorm:"primaryKey;size:512"`
	DocID      string `gorm:"primaryKey;size:255"`
}

func (indexRow) TableName() string { return "document_index" }

// revisionRow counts commits that touched a collection (empty Field and
// Value) or one of its index entries.
type revisionRow struct {
	Collection string `gorm:"primaryKey;size:255"`
	Field      string `gorm:"primaryKey;size:255"`
	Value      string `gorm:"primaryKey;size:512"`
	Revision   int64  `gorm:"not null"`
}

func (revisionRow) TableName() string { return "document_revisions" }

// guard names one revision counter.
type guard struct {
	Collection string
	Field      string
	Value      string
}

func collectionGuard(collection string) guard {
	return guard{Collection: collection}
}

func termGuard(collection string, e docstore.IndexEntry) guard {
	return guard{Collection: collection, Field: e.Field, Value: e.Value}
}

func (g guard) less(o guard) bool {
	if g.Collection != o.Collection {
		return g.Collection < o.Collection
	}
	if g.Field != o.Field {
		return g.Field < o.Field
	}
	return g.Value < o.Value
}

// Options configures a Store.
type Options struct {
	// MaxAttempts bounds transaction retries; zero uses docstore.DefaultMaxAttempts.
	MaxAttempts int
	// Indexes lists the fields served from the document_index table.
	Indexes docstore.IndexSpec
}

// Store is a GORM-backed document store.
type Store struct {
	db          *gorm.DB
	maxAttempts int
	indexes     docstore.IndexSpec
}

var _ docstore.Store = (*Store)(nil)

// Open connects through dialector with slog query logging and translated
// driver errors.
func Open(dialector gorm.Dialector, opts Options) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger(observability.Logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, opts), nil
}

// New wraps an open database. Call Migrate before first use.
func New(db *gorm.DB, opts Options) *Store {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = docstore.DefaultMaxAttempts
	}
	return &Store{db: db, maxAttempts: maxAttempts, indexes: opts.Indexes}
}

// Migrate creates the document, index and revision tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&documentRow{}, &indexRow{}, &revisionRow{}); err != nil {
		return fmt.Errorf("failed to migrate document tables: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// reads remembers what one attempt observed so the commit can verify it.
type reads struct {
	db        *gorm.DB
	versions  map[docstore.Key]int64 // 0 when the document was missing
	revisions map[guard]int64
}

func (s *Store) newReads(ctx context.Context) *reads {
	return &reads{
		db:        s.db.WithContext(ctx),
		versions:  map[docstore.Key]int64{},
		revisions: map[guard]int64{},
	}
}

func (r *reads) load(key docstore.Key) (map[string]any, bool, error) {
	var row documentRow
	err := r.db.Where("collection = ? AND id = ?", key.Collection, key.ID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.observe(key, 0)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqldoc: get %s/%s: %w", key.Collection, key.ID, err)
	}
	data, err := docstore.Unmarshal([]byte(row.Data))
	if err != nil {
		return nil, false, err
	}
	r.observe(key, row.Version)
	return data, true, nil
}

// observe keeps the first version seen so a later read of a newer version
// still fails verification.
func (r *reads) observe(key docstore.Key, version int64) {
	if _, ok := r.versions[key]; !ok {
		r.versions[key] = version
	}
}

func (r *reads) revision(g guard) error {
	if _, ok := r.revisions[g]; ok {
		return nil
	}
	row := revisionRow{Collection: g.Collection, Field: g.Field, Value: g.Value}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("sqldoc: revision %s: %w", g.Collection, err)
	}
	err := r.db.Where("collection = ? AND field = ? AND value = ?", g.Collection, g.Field, g.Value).Take(&row).Error
	if err != nil {
		return fmt.Errorf("sqldoc: revision %s: %w", g.Collection, err)
	}
	r.revisions[g] = row.Revision
	return nil
}

// query guards an indexed query on the revisions of its index terms and the
// versions of its candidates, and a scan on the collection revision.
func (r *reads) query(indexes docstore.IndexSpec, q docstore.Query) ([]*docstore.Snapshot, error) {
	terms := indexes.Terms(q)
	if len(terms) == 0 {
		if err := r.revision(collectionGuard(q.Collection)); err != nil {
			return nil, err
		}
	}
	for _, t := range terms {
		if err := r.revision(termGuard(q.Collection, t)); err != nil {
			return nil, err
		}
	}

	var rows []documentRow
	if len(terms) > 0 {
		ids, err := r.indexIDs(q.Collection, terms)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []*docstore.Snapshot{}, nil
		}
		err = r.db.Where("collection = ? AND id IN ?", q.Collection, ids).Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("sqldoc: query %s: %w", q.Collection, err)
		}
	} else if err := r.db.Where("collection = ?", q.Collection).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqldoc: query %s: %w", q.Collection, err)
	}

	candidates := make([]*docstore.Snapshot, 0, len(rows))
	for _, row := range rows {
		if len(terms) > 0 {
			r.observe(docstore.Key{Collection: row.Collection, ID: row.ID}, row.Version)
		}
		data, err := docstore.Unmarshal([]byte(row.Data))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, &docstore.Snapshot{Collection: row.Collection, ID: row.ID, Data: data})
	}
	return q.Apply(candidates), nil
}

// indexIDs intersects the id lists of every term.
func (r *reads) indexIDs(collection string, terms []docstore.IndexEntry) ([]string, error) {
	var result map[string]struct{}
	for _, t := range terms {
		var ids []string
		err := r.db.Model(&indexRow{}).
			Where("collection = ? AND field = ? AND value = ?", collection, t.Field, t.Value).
			Pluck("doc_id", &ids).Error
		if err != nil {
			return nil, fmt.Errorf("sqldoc: index %s.%s: %w", collection, t.Field, err)
		}
		next := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := result[id]; result == nil || ok {
				next[id] = struct{}{}
			}
		}
		result = next
		if len(result) == 0 {
			break
		}
	}
	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Get returns the committed document.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Snapshot, error) {
	defer observability.TrackStoreOperation(backendName, "get")()
	data, exists, err := s.newReads(ctx).load(docstore.Key{Collection: collection, ID: id})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, docstore.ErrNotFound
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
	out, err := s.newReads(ctx).query(s.indexes, prepared)
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

// RunTransaction runs fn optimistically, retrying when a document, index
// term or collection it read changed before the commit.
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
	r := s.newReads(ctx)
	a := docstore.NewAttempt(r.load, func(q docstore.Query) ([]*docstore.Snapshot, error) {
		return r.query(s.indexes, q)
	})
	if err := fn(ctx, a); err != nil {
		return err
	}
	changes := a.Changes()
	if len(changes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.commit(tx, r, changes)
	})
	if isRetryable(err) {
		return docstore.ErrAborted
	}
	return err
}

func (s *Store) commit(tx *gorm.DB, r *reads, changes []docstore.Change) error {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Key.Collection != changes[j].Key.Collection {
			return changes[i].Key.Collection < changes[j].Key.Collection
		}
		return changes[i].Key.ID < changes[j].Key.ID
	})

	now := time.Now().UTC()
	written := make(map[docstore.Key]struct{}, len(changes))
	touched := map[guard]struct{}{}
	for _, c := range changes {
		if err := s.writeDocument(tx, c, r.versions[c.Key], now); err != nil {
			return err
		}
		if err := s.writeIndex(tx, c, touched); err != nil {
			return err
		}
		written[c.Key] = struct{}{}
		touched[collectionGuard(c.Key.Collection)] = struct{}{}
	}

	if err := verifyReads(tx, r, written); err != nil {
		return err
	}
	return bumpRevisions(tx, r, touched)
}

func (s *Store) writeDocument(tx *gorm.DB, c docstore.Change, version int64, now time.Time) error {
	where := tx.Where("collection = ? AND id = ? AND version = ?", c.Key.Collection, c.Key.ID, version)
	switch {
	case c.After == nil:
		res := where.Delete(&documentRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStale
		}
		return nil
	case c.Before == nil:
		raw, err := docstore.Marshal(c.After)
		if err != nil {
			return fmt.Errorf("sqldoc: encode %s/%s: %w", c.Key.Collection, c.Key.ID, err)
		}
		return tx.Create(&documentRow{
			Collection: c.Key.Collection,
			ID:         c.Key.ID,
			Data:       string(raw),
			Version:    1,
			UpdatedAt:  now,
		}).Error
	default:
		raw, err := docstore.Marshal(c.After)
		if err != nil {
			return fmt.Errorf("sqldoc: encode %s/%s: %w", c.Key.Collection, c.Key.ID, err)
		}
		res := where.Model(&documentRow{}).Updates(map[string]any{
			"data":       string(raw),
			"version":    version + 1,
			"updated_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStale
		}
		return nil
	}
}

// writeIndex applies the index rows c adds and removes, recording each
// changed term in touched.
func (s *Store) writeIndex(tx *gorm.DB, c docstore.Change, touched map[guard]struct{}) error {
	col, id := c.Key.Collection, c.Key.ID
	removed, added := docstore.DiffEntries(s.indexes.Entries(col, c.Before), s.indexes.Entries(col, c.After))
	for _, e := range removed {
		touched[termGuard(col, e)] = struct{}{}
		err := tx.Where("collection = ? AND field = ? AND value = ? AND doc_id = ?", col, e.Field, e.Value, id).
			Delete(&indexRow{}).Error
		if err != nil {
			return err
		}
	}
	if len(added) == 0 {
		return nil
	}
	rows := make([]indexRow, len(added))
	for i, e := range added {
		touched[termGuard(col, e)] = struct{}{}
		rows[i] = indexRow{Collection: col, Field: e.Field, Value: e.Value, DocID: id}
	}
	return tx.Create(&rows).Error
}

// verifyReads checks that documents read but not written are unchanged.
// The no-op update takes the row lock so a concurrent writer serializes
// behind this commit.
func verifyReads(tx *gorm.DB, r *reads, written map[docstore.Key]struct{}) error {
	keys := make([]docstore.Key, 0, len(r.versions))
	for k := range r.versions {
		if _, ok := written[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Collection != keys[j].Collection {
			return keys[i].Collection < keys[j].Collection
		}
		return keys[i].ID < keys[j].ID
	})
	for _, k := range keys {
		version := r.versions[k]
		if version == 0 {
			var n int64
			if err := tx.Model(&documentRow{}).Where("collection = ? AND id = ?", k.Collection, k.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return errStale
			}
			continue
		}
		res := tx.Model(&documentRow{}).
			Where("collection = ? AND id = ? AND version = ?", k.Collection, k.ID, version).
			Update("version", gorm.Expr("version"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStale
		}
	}
	return nil
}

// bumpRevisions advances every touched revision and checks that the ones
// the attempt queried under still sit where they were read.
func bumpRevisions(tx *gorm.DB, r *reads, touched map[guard]struct{}) error {
	guards := make([]guard, 0, len(touched)+len(r.revisions))
	for g := range touched {
		guards = append(guards, g)
	}
	for g := range r.revisions {
		if _, ok := touched[g]; !ok {
			guards = append(guards, g)
		}
	}
	sort.Slice(guards, func(i, j int) bool { return guards[i].less(guards[j]) })

	for _, g := range guards {
		seen, queried := r.revisions[g]
		_, wrote := touched[g]
		switch {
		case queried:
			next := gorm.Expr("revision")
			if wrote {
				next = gorm.Expr("revision + 1")
			}
			res := tx.Model(&revisionRow{}).
				Where("collection = ? AND field = ? AND value = ? AND revision = ?", g.Collection, g.Field, g.Value, seen).
				Update("revision", next)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStale
			}
		default:
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "collection"}, {Name: "field"}, {Name: "value"}},
				DoUpdates: clause.Assignments(map[string]any{"revision": gorm.Expr("document_revisions.revision + 1")}),
			}).Create(&revisionRow{Collection: g.Collection, Field: g.Field, Value: g.Value, Revision: 1}).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// isRetryable reports whether err means the attempt lost a race rather
// than failed.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errStale) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return strings.Contains(err.Error(), "database is locked")
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqldoc: ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqldoc: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
