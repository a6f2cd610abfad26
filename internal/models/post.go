package models

import "time"

// Post limits.
const (
	MinPostImages = 1
	MaxPostImages = 5
)

// Post is a marketplace listing owned by AuthorID.
type Post struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Brand       string    `json:"brand"`
	Size        string    `json:"size"`
	Tags        []string  `json:"tags"`
	Images      []string  `json:"images"`
	IsAvailable bool      `json:"isAvailable"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewPostInput is a validated listing payload; images are uploaded by the service.
type NewPostInput struct {
	Title       string
	Description string
	Brand       string
	Size        string
	Tags        []string
	Price       float64
	Images      []Upload
}

// Upload is one binary object to store.
type Upload struct {
	Data        []byte
	ContentType string
}
