package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".png", extensionFor(" IMAGE/PNG; charset=binary"))
	assert.Equal(t, ".bin", extensionFor("application/octet-stream"))
}

func TestKeyFromURL(t *testing.T) {
	key, ok := keyFromURL("https://cdn.example.com/images/", "https://cdn.example.com/images/a.jpg")
	assert.True(t, ok)
	assert.Equal(t, "a.jpg", key)

	_, ok = keyFromURL("https://cdn.example.com/images", "https://other.example.com/images/a.jpg")
	assert.False(t, ok)
	_, ok = keyFromURL("https://cdn.example.com/images", "https://cdn.example.com/images/../secret")
	assert.False(t, ok)
	_, ok = keyFromURL("https://cdn.example.com/images", "https://cdn.example.com/images/x/y.jpg")
	assert.False(t, ok)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "blobs"), "http://localhost/static/")
	require.NoError(t, err)

	url, err := s.Put(ctx, []byte("pixels"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost/static/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	key := strings.TrimPrefix(url, "http://localhost/static/")
	data, err := os.ReadFile(filepath.Join(dir, "blobs", key))
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	require.NoError(t, s.Delete(ctx, url))
	assert.ErrorIs(t, s.Delete(ctx, url), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "https://elsewhere/x.png"), ErrNotFound)
}

func TestFileStore_CancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "http://localhost")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, []byte("x"), "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeS3 serves the path-style object calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Store(t *testing.T, publicBase string) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3Store(S3Config{
		Bucket:          "listing-images",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		PublicBaseURL:   publicBase,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return s, fake
}

func TestS3Store_PutAndDelete(t *testing.T) {
	ctx := context.Background()
	s, fake := newFakeS3Store(t, "https://cdn.example.com")

	url, err := s.Put(ctx, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn.example.com/"))
	key := strings.TrimPrefix(url, "https://cdn.example.com/")

	fake.mu.Lock()
	assert.Equal(t, []byte("jpeg-bytes"), fake.objects["/listing-images/"+key])
	assert.Equal(t, "image/jpeg", fake.types["/listing-images/"+key])
	fake.mu.Unlock()

	require.NoError(t, s.Delete(ctx, url))
	assert.ErrorIs(t, s.Delete(ctx, url), ErrNotFound)
}

func TestS3Store_LocationURL(t *testing.T) {
	ctx := context.Background()
	s, _ := newFakeS3Store(t, "")

	url, err := s.Put(ctx, []byte("x"), "image/webp")
	require.NoError(t, err)
	assert.Contains(t, url, "/listing-images/")
	assert.True(t, strings.HasSuffix(url, ".webp"))
	require.NoError(t, s.Delete(ctx, url))
}

func TestS3Store_ServerErrorIsNotNotFound(t *testing.T) {
	s, fake := newFakeS3Store(t, "https://cdn.example.com")
	fake.mu.Lock()
	fake.fail = true
	fake.mu.Unlock()

	err := s.Delete(context.Background(), "https://cdn.example.com/a.jpg")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
