// Package blob stores binary objects (listing images, avatars) addressed by
// the public URL returned from Put.
package blob

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Delete when the object does not exist.
var ErrNotFound = errors.New("blob: object not found")

// Store puts and deletes objects.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",
}

// extensionFor maps a content type to a file extension, defaulting to .bin.
func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := extensions[ct]; ok {
		return ext
	}
	return ".bin"
}

// keyFromURL returns the object key of url when it lives under base.
func keyFromURL(base, url string) (string, bool) {
	base = strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, base) {
		return "", false
	}
	key := strings.TrimPrefix(url, base)
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, "/\\") {
		return "", false
	}
	return key, true
}
