package models

import "time"

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is embedded in the reviewed profile and never changes once appended.
type Review struct {
	ReviewerID string    `json:"reviewerId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	PostID     string    `json:"postId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewReviewInput is the reviewer-supplied part of a Review.
type NewReviewInput struct {
	ReviewerID string
	Rating     int
	Comment    string
	PostID     string
}
