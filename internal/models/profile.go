// Package models contains the document types of the marketplace domain.
package models

import "time"

// Collection names.
const (
	CollectionProfiles = "profiles"
	CollectionPosts    = "posts"
	CollectionChats    = "chats"
	CollectionMessages = "messages"
	CollectionReports  = "reports"
)

// UserProfile is the per-user document. Rating is the mean of Reviews'
// ratings and TotalReviews their count.
type UserProfile struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	DisplayName  string   `json:"displayName"`
	Bio          string   `json:"bio"`
	Avatar       string   `json:"avatar,omitempty"`
	Following    []string `json:"following"`
	Followers    []string `json:"followers"`
	BlockedUsers []string `json:"blockedUsers"`
	Reviews      []Review `json:"reviews"`
	Rating       float64  `json:"rating"`
	TotalReviews int      `json:"totalReviews"`
	IsBanned     bool     `json:"isBanned"`

	// recommendation inputs
	PreferredStyles []string `json:"preferredStyles"`
	Size            string   `json:"size"`
	LikedPosts      []string `json:"likedPosts"`
	ViewedItems     []string `json:"viewedItems"`
	SearchHistory   []string `json:"searchHistory"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUserProfile returns a profile with empty relationship sets.
func NewUserProfile(id, username string, now time.Time) *UserProfile {
	return &UserProfile{
		ID:              id,
		Username:        username,
		Following:       []string{},
		Followers:       []string{},
		BlockedUsers:    []string{},
		Reviews:         []Review{},
		PreferredStyles: []string{},
		LikedPosts:      []string{},
		ViewedItems:     []string{},
		SearchHistory:   []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsFollowing reports whether p follows userID.
func (p *UserProfile) IsFollowing(userID string) bool {
	return contains(p.Following, userID)
}

// HasBlocked reports whether p blocked userID.
func (p *UserProfile) HasBlocked(userID string) bool {
	return contains(p.BlockedUsers, userID)
}

// ProfileUpdate carries optional profile field changes; nil leaves a field as is.
type ProfileUpdate struct {
	Username        *string
	DisplayName     *string
	Bio             *string
	Size            *string
	PreferredStyles []string
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
