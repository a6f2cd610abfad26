package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"threadline/internal/blob"
	"threadline/internal/docstore"
	"threadline/internal/docstore/redisdoc"
	"threadline/internal/models"
	"threadline/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobStub keeps objects in memory. putFn and deleteFn, when set, replace
// the default behaviour.
type blobStub struct {
	mu       sync.Mutex
	objects  map[string][]byte
	next     int
	putFn    func(ctx context.Context, data []byte, contentType string) (string, error)
	deleteFn func(ctx context.Context, url string) error
}

func newBlobStub() *blobStub {
	return &blobStub{objects: map[string][]byte{}}
}

func (b *blobStub) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if b.putFn != nil {
		return b.putFn(ctx, data, contentType)
	}
	return b.store(data), nil
}

func (b *blobStub) store(data []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	url := fmt.Sprintf("mem://blobs/%d", b.next)
	b.objects[url] = data
	return url
}

func (b *blobStub) Delete(ctx context.Context, url string) error {
	if b.deleteFn != nil {
		return b.deleteFn(ctx, url)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[url]; !ok {
		return blob.ErrNotFound
	}
	delete(b.objects, url)
	return nil
}

func (b *blobStub) has(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[url]
	return ok
}

func (b *blobStub) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// faultyStore fails Delete for keys listed in failDeletes, once per key, and
// the first Update writing a field listed in failFields, whether direct or
// inside a transaction.
type faultyStore struct {
	docstore.Store
	mu          sync.Mutex
	failDeletes map[docstore.Key]bool
	failFields  map[string]bool
	txCalls     atomic.Int32
}

func (s *faultyStore) failDeleteOnce(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes == nil {
		s.failDeletes = map[docstore.Key]bool{}
	}
	s.failDeletes[docstore.Key{Collection: collection, ID: id}] = true
}

func (s *faultyStore) failFieldWriteOnce(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFields == nil {
		s.failFields = map[string]bool{}
	}
	s.failFields[field] = true
}

func (s *faultyStore) takeFieldFailure(updates []docstore.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if s.failFields[u.Field] {
			delete(s.failFields, u.Field)
			return fmt.Errorf("injected write failure on %s", u.Field)
		}
	}
	return nil
}

func (s *faultyStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	key := docstore.Key{Collection: collection, ID: id}
	fail := s.failDeletes[key]
	delete(s.failDeletes, key)
	s.mu.Unlock()
	if fail {
		return errors.New("injected delete failure")
	}
	return s.Store.Delete(ctx, collection, id)
}

func (s *faultyStore) Update(ctx context.Context, collection, id string, updates ...docstore.Update) error {
	if err := s.takeFieldFailure(updates); err != nil {
		return err
	}
	return s.Store.Update(ctx, collection, id, updates...)
}

func (s *faultyStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	s.txCalls.Add(1)
	return s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, store: s})
	})
}

type faultyTx struct {
	docstore.Tx
	store *faultyStore
}

func (t faultyTx) Update(collection, id string, updates ...docstore.Update) error {
	if err := t.store.takeFieldFailure(updates); err != nil {
		return err
	}
	return t.Tx.Update(collection, id, updates...)
}

type fixture struct {
	t        *testing.T
	mr       *miniredis.Miniredis
	store    *faultyStore
	blobs    *blobStub
	profiles repository.ProfileRepository
	posts    repository.PostRepository
	chats    repository.ChatRepository
	reports  repository.ReportRepository
	clock    *fakeClock
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &faultyStore{Store: redisdoc.New(client, redisdoc.Options{
		Prefix:      "test:",
		MaxAttempts: maxAttempts,
		Indexes:     repository.Indexes,
	})}
	return &fixture{
		t:        t,
		mr:       mr,
		store:    store,
		blobs:    newBlobStub(),
		profiles: repository.NewProfileRepository(store),
		posts:    repository.NewPostRepository(store),
		chats:    repository.NewChatRepository(store),
		reports:  repository.NewReportRepository(store),
		clock:    newFakeClock(),
	}
}

func (f *fixture) profileService() *ProfileService {
	s := NewProfileService(f.profiles, f.blobs)
	s.now = f.clock.Now
	return s
}

func (f *fixture) postService() *PostService {
	s := NewPostService(f.posts, f.profiles, f.blobs)
	s.now = f.clock.Now
	return s
}

func (f *fixture) chatService() *ChatService {
	s := NewChatService(f.chats, f.profiles)
	s.now = f.clock.Now
	return s
}

func (f *fixture) reportService() *ReportService {
	s := NewReportService(f.reports, f.profiles, f.posts)
	s.now = f.clock.Now
	return s
}

func (f *fixture) purgeService(pageSize int) *PurgeService {
	return NewPurgeService(f.profiles, f.posts, f.chats, f.blobs, pageSize)
}

// user reserves a fake username for id and returns the stored profile.
func (f *fixture) user(id string) *models.UserProfile {
	f.t.Helper()
	name := strings.ToLower(gofakeit.LetterN(8)) + "_" + id
	p, err := f.profileService().ReserveUsername(context.Background(), id, name)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) reload(id string) *models.UserProfile {
	f.t.Helper()
	p, err := f.profiles.Get(context.Background(), id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) post(authorID string, images int, tags ...string) *models.Post {
	f.t.Helper()
	in := models.NewPostInput{
		Title:       gofakeit.Sentence(3),
		Description: gofakeit.Sentence(10),
		Brand:       gofakeit.Company(),
		Size:        "M",
		Tags:        tags,
		Price:       gofakeit.Price(5, 200),
	}
	for i := 0; i < images; i++ {
		in.Images = append(in.Images, fakeImage())
	}
	p, err := f.postService().CreatePost(context.Background(), authorID, in)
	require.NoError(f.t, err)
	return p
}

func fakeImage() models.Upload {
	return models.Upload{Data: []byte(gofakeit.LetterN(32)), ContentType: "image/png"}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now advances by one second per call so timestamps are strictly ordered.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected *models.AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code, "unexpected error: %v", err)
}
