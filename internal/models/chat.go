package models

import "time"

// Chat is a direct conversation between exactly two participants.
type Chat struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"lastMessage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID is part of the chat.
func (c *Chat) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

// Message lives in the messages sub-collection of its chat.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	ReadBy    []string  `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
}
