package models

// Purge phases in execution order.
const (
	PurgePhaseAvatar        = "avatar"
	PurgePhasePosts         = "posts"
	PurgePhaseChats         = "chats"
	PurgePhaseRelationships = "relationships"
	PurgePhaseProfile       = "profile"
)

// PurgeSummary counts the work a purge run performed.
type PurgeSummary struct {
	DeletedPosts     int      `json:"deletedPosts"`
	DeletedChats     int      `json:"deletedChats"`
	DeletedMessages  int      `json:"deletedMessages"`
	DeletedBlobs     int      `json:"deletedBlobs"`
	SkippedBlobs     int      `json:"skippedBlobs"`
	DetachedProfiles int      `json:"detachedProfiles"`
	CompletedPhases  []string `json:"completedPhases"`
}
