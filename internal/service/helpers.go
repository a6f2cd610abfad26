// Package service implements the account lifecycle operations on top of the
// repositories and the blob store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"threadline/internal/blob"
	"threadline/internal/models"
	"threadline/internal/observability"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{3,30}$`)

// normalizeUsername lower-cases and validates a candidate username.
func normalizeUsername(candidate string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(candidate))
	if !usernamePattern.MatchString(u) {
		return "", models.NewValidationError("username must be 3-30 characters of letters, digits, '.' or '_'")
	}
	return u, nil
}

type blobOutcome int

const (
	blobDeleted blobOutcome = iota
	blobMissing
	blobFailed
)

// deleteBlob removes url and never fails the caller: a missing object is
// ignored and any other error is logged and counted under flow.
func deleteBlob(ctx context.Context, store blob.Store, url, flow string) blobOutcome {
	err := store.Delete(ctx, url)
	switch {
	case err == nil:
		return blobDeleted
	case errors.Is(err, blob.ErrNotFound):
		return blobMissing
	default:
		observability.BlobErrorsSwallowed.WithLabelValues(flow).Inc()
		observability.Logger.WarnContext(ctx, "blob delete failed, continuing",
			slog.String("flow", flow),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return blobFailed
	}
}

func userIDAttr(id string) slog.Attr {
	return slog.String("user_id", id)
}

func defaultClock() time.Time {
	return time.Now().UTC()
}
