package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"threadline/internal/blob"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/recommend"
	"threadline/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxPostTitleLength = 100
	maxPostTagCount    = 20
	// recommendPoolSize caps the available posts scored per request.
	recommendPoolSize = 500
)

// PostService manages listings and their images.
type PostService struct {
	posts    repository.PostRepository
	profiles repository.ProfileRepository
	blobs    blob.Store
	now      func() time.Time
}

// NewPostService returns a new PostService.
func NewPostService(posts repository.PostRepository, profiles repository.ProfileRepository, blobs blob.Store) *PostService {
	return &PostService{posts: posts, profiles: profiles, blobs: blobs, now: defaultClock}
}

// CreatePost uploads the images of in and stores a listing owned by authorID.
// Images already uploaded are released when a later step fails.
func (s *PostService) CreatePost(ctx context.Context, authorID string, in models.NewPostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > maxPostTitleLength {
		return nil, models.NewValidationError(fmt.Sprintf("title must be 1-%d characters", maxPostTitleLength))
	}
	if len(in.Images) < models.MinPostImages || len(in.Images) > models.MaxPostImages {
		return nil, models.NewValidationError(fmt.Sprintf("a post needs %d to %d images", models.MinPostImages, models.MaxPostImages))
	}
	if len(in.Tags) > maxPostTagCount {
		return nil, models.NewValidationError("too many tags")
	}
	if in.Price < 0 {
		return nil, models.NewValidationError("price cannot be negative")
	}
	for _, img := range in.Images {
		if len(img.Data) == 0 || !strings.HasPrefix(strings.ToLower(img.ContentType), "image/") {
			return nil, models.NewValidationError("every upload must be a non-empty image")
		}
	}

	author, err := s.profiles.Get(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if author.IsBanned {
		return nil, models.NewForbiddenError("Banned users cannot create posts")
	}

	ctx, span := observability.StartServiceSpan(ctx, "PostService", "CreatePost", attribute.String("user.id", authorID))
	urls := make([]string, 0, len(in.Images))
	release := func() {
		for _, u := range urls {
			deleteBlob(ctx, s.blobs, u, "post_rollback")
		}
	}
	for _, img := range in.Images {
		url, err := s.blobs.Put(ctx, img.Data, img.ContentType)
		if err != nil {
			release()
			appErr := models.NewExternalServiceError("blob store", err)
			span.End(appErr)
			return nil, appErr
		}
		urls = append(urls, url)
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	post := &models.Post{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		Title:       title,
		Description: in.Description,
		Brand:       strings.TrimSpace(in.Brand),
		Size:        strings.TrimSpace(in.Size),
		Tags:        tags,
		Images:      urls,
		IsAvailable: true,
		Price:       in.Price,
		CreatedAt:   s.now(),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		release()
		span.End(err)
		return nil, err
	}
	span.End(nil)
	observability.Logger.InfoContext(ctx, "post created",
		userIDAttr(authorID),
		slog.String("post_id", post.ID),
		slog.Int("images", len(urls)),
	)
	return post, nil
}

// DeletePost removes a listing owned by callerID. Image deletion is best effort.
func (s *PostService) DeletePost(ctx context.Context, callerID, postID string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != callerID {
		return models.NewForbiddenError("Only the author can delete this post")
	}
	for _, img := range post.Images {
		deleteBlob(ctx, s.blobs, img, "post_delete")
	}
	return s.posts.Delete(ctx, postID)
}

// RecommendFor ranks available posts for profileID and returns the top k.
// The profile's own posts and posts of users it blocked are left out.
func (s *PostService) RecommendFor(ctx context.Context, profileID string, k int) ([]models.Post, error) {
	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	available, err := s.posts.ListAvailable(ctx, recommendPoolSize)
	if err != nil {
		return nil, err
	}

	pool := make([]models.Post, 0, len(available))
	for _, p := range available {
		if p.AuthorID == profileID || profile.HasBlocked(p.AuthorID) {
			continue
		}
		pool = append(pool, *p)
	}
	return recommend.Rank(pool, *profile, k), nil
}
