// Package repository maps the domain documents onto the document store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"threadline/internal/docstore"
	"threadline/internal/models"
)

// Indexes lists the fields the store keeps reverse indexes for. Purge and
// uniqueness lookups depend on every one of them.
var Indexes = docstore.IndexSpec{
	models.CollectionProfiles: {"username", "following", "followers"},
	models.CollectionPosts:    {"authorId", "isAvailable"},
	models.CollectionChats:    {"participants"},
	models.CollectionReports:  {"status", "targetId", "reporterId"},
}

// mapStoreError converts docstore errors to application errors. Errors that
// already are application errors pass through.
func mapStoreError(err error, resource string, id interface{}) error {
	var appErr *models.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, docstore.ErrNotFound):
		return models.NewNotFoundError(resource, id)
	case errors.Is(err, docstore.ErrAlreadyExists):
		return models.NewConflictError(fmt.Sprintf("%s with ID %v already exists", resource, id), err)
	case errors.Is(err, docstore.ErrConflict):
		return models.NewConflictError("too many concurrent updates, try again", err)
	case errors.Is(err, docstore.ErrReadAfterWrite), errors.Is(err, docstore.ErrBatchTooLarge):
		return models.NewInternalError(err)
	default:
		return models.NewExternalServiceError("document store", err)
	}
}

func decode[T any](snap *docstore.Snapshot) (*T, error) {
	var v T
	if err := snap.DataTo(&v); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &v, nil
}

func decodeAll[T any](snaps []*docstore.Snapshot) ([]*T, error) {
	out := make([]*T, 0, len(snaps))
	for _, s := range snaps {
		v, err := decode[T](s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
