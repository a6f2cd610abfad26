package repository

import (
	"context"

	"threadline/internal/docstore"
	"threadline/internal/models"
)

// PostRepository defines the interface for listing data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	// ListByAuthor returns at most limit posts of authorID; zero means all.
	ListByAuthor(ctx context.Context, authorID string, limit int) ([]*models.Post, error)
	// ListAvailable returns available posts oldest first.
	ListAvailable(ctx context.Context, limit int) ([]*models.Post, error)
	Delete(ctx context.Context, id string) error
}

// postRepository implements PostRepository
type postRepository struct {
	store docstore.Store
}

// NewPostRepository creates a new post repository
func NewPostRepository(store docstore.Store) PostRepository {
	return &postRepository{store: store}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return mapStoreError(r.store.Create(ctx, models.CollectionPosts, post.ID, post), "Post", post.ID)
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	snap, err := r.store.Get(ctx, models.CollectionPosts, id)
	if err != nil {
		return nil, mapStoreError(err, "Post", id)
	}
	return decode[models.Post](snap)
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID string, limit int) ([]*models.Post, error) {
	q := docstore.From(models.CollectionPosts).Where("authorId", docstore.OpEqual, authorID).Limit(limit)
	snaps, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, mapStoreError(err, "Post", authorID)
	}
	return decodeAll[models.Post](snaps)
}

func (r *postRepository) ListAvailable(ctx context.Context, limit int) ([]*models.Post, error) {
	q := docstore.From(models.CollectionPosts).
		Where("isAvailable", docstore.OpEqual, true).
		OrderBy("createdAt", docstore.Asc).
		Limit(limit)
	snaps, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, mapStoreError(err, "Post", "*")
	}
	return decodeAll[models.Post](snaps)
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	return mapStoreError(r.store.Delete(ctx, models.CollectionPosts, id), "Post", id)
}
