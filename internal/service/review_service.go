package service

import (
	"context"
	"fmt"
	"time"

	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const maxCommentLength = 1000

// ReviewService appends reviews and keeps the profile's rating aggregate.
type ReviewService struct {
	profiles repository.ProfileRepository
	now      func() time.Time
}

// NewReviewService returns a new ReviewService.
func NewReviewService(profiles repository.ProfileRepository) *ReviewService {
	return &ReviewService{profiles: profiles, now: defaultClock}
}

// AddReview appends a review to targetID and recomputes rating and
// totalReviews in the same transaction.
func (s *ReviewService) AddReview(ctx context.Context, targetID string, in models.NewReviewInput) (*models.Review, error) {
	if in.Rating < models.MinRating || in.Rating > models.MaxRating {
		return nil, models.NewValidationError(fmt.Sprintf("rating must be between %d and %d", models.MinRating, models.MaxRating))
	}
	if len(in.Comment) > maxCommentLength {
		return nil, models.NewValidationError("comment is too long")
	}
	if in.ReviewerID == targetID {
		return nil, models.NewForbiddenError("You cannot review yourself")
	}
	if _, err := s.profiles.Get(ctx, targetID); err != nil {
		return nil, err
	}

	ctx, span := observability.StartServiceSpan(ctx, "ReviewService", "AddReview", attribute.String("user.id", targetID))
	review := models.Review{
		ReviewerID: in.ReviewerID,
		Rating:     in.Rating,
		Comment:    in.Comment,
		PostID:     in.PostID,
		CreatedAt:  s.now(),
	}
	err := s.profiles.Transact(ctx, func(tx repository.ProfileTx) error {
		target, err := tx.Get(targetID)
		if err != nil {
			return err
		}
		reviews := make([]models.Review, 0, len(target.Reviews)+1)
		reviews = append(reviews, target.Reviews...)
		reviews = append(reviews, review)
		return tx.Update(targetID,
			docstore.Field("reviews", reviews),
			docstore.Field("rating", meanRating(reviews)),
			docstore.Field("totalReviews", len(reviews)),
			docstore.Field("updatedAt", review.CreatedAt),
		)
	})
	span.End(err)
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// meanRating is the unrounded arithmetic mean of the ratings.
func meanRating(reviews []models.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}
