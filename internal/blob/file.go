package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore keeps objects as files under one directory and serves them
// from a public base URL.
type FileStore struct {
	rootPath string
	baseURL  string
}

// NewFileStore creates rootPath if needed.
func NewFileStore(rootPath, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create directory %s: %w", rootPath, err)
	}
	return &FileStore{rootPath: rootPath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data under a fresh key and returns its URL.
func (s *FileStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.NewString() + extensionFor(contentType)
	target := filepath.Join(s.rootPath, key)
	tempPath := target + ".tmp"

	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("blob: write file: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("blob: rename file: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete removes the object behind url.
func (s *FileStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, ok := keyFromURL(s.baseURL, url)
	if !ok {
		return fmt.Errorf("%w: %s is not served by this store", ErrNotFound, url)
	}
	if err := os.Remove(filepath.Join(s.rootPath, key)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("blob: delete file: %w", err)
	}
	return nil
}
