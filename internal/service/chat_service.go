package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxMessageLength   = 2000
	defaultMessagePage = 50
)

// ChatService manages direct chats between two users.
type ChatService struct {
	chats    repository.ChatRepository
	profiles repository.ProfileRepository
	now      func() time.Time
}

// NewChatService returns a new ChatService.
func NewChatService(chats repository.ChatRepository, profiles repository.ProfileRepository) *ChatService {
	return &ChatService{chats: chats, profiles: profiles, now: defaultClock}
}

// chatID is the same for both orderings of a pair.
func chatID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1]
}

// CreateChat opens the chat between callerID and otherID, or returns the one
// that already exists.
func (s *ChatService) CreateChat(ctx context.Context, callerID, otherID string) (*models.Chat, error) {
	if callerID == otherID {
		return nil, models.NewValidationError("a chat needs two distinct participants")
	}
	caller, err := s.profiles.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	other, err := s.profiles.Get(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if caller.HasBlocked(otherID) || other.HasBlocked(callerID) {
		return nil, models.NewForbiddenError("You cannot chat with this user")
	}

	id := chatID(callerID, otherID)
	now := s.now()
	chat := &models.Chat{
		ID:           id,
		Participants: []string{callerID, otherID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.chats.Create(ctx, chat)
	if models.IsConflict(err) {
		return s.chats.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// SendMessage appends text to the chat as senderID.
func (s *ChatService) SendMessage(ctx context.Context, senderID, chatID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxMessageLength {
		return nil, models.NewValidationError("message must be 1-2000 characters")
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, models.NewForbiddenError("You are not part of this chat")
	}
	for _, p := range chat.Participants {
		if p == senderID {
			continue
		}
		recipient, err := s.profiles.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		if recipient.HasBlocked(senderID) {
			return nil, models.NewForbiddenError("You cannot message this user")
		}
	}

	ctx, span := observability.StartServiceSpan(ctx, "ChatService", "SendMessage", attribute.String("chat.id", chatID))
	msg := &models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Text:      text,
		ReadBy:    []string{senderID},
		CreatedAt: s.now(),
	}
	err = s.chats.AddMessage(ctx, chatID, msg)
	span.End(err)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns up to limit messages of the chat, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, callerID, chatID string, limit int) ([]*models.Message, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(callerID) {
		return nil, models.NewForbiddenError("You are not part of this chat")
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	return s.chats.ListMessages(ctx, chatID, limit)
}

// ListChats returns the chats userID participates in.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]*models.Chat, error) {
	return s.chats.ListByParticipant(ctx, userID)
}

// DeleteChat removes the chat and its messages for both participants.
func (s *ChatService) DeleteChat(ctx context.Context, callerID, chatID string) error {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(callerID) {
		return models.NewForbiddenError("You are not part of this chat")
	}
	ctx, span := observability.StartServiceSpan(ctx, "ChatService", "DeleteChat", attribute.String("chat.id", chatID))
	n, err := s.chats.DeleteCascade(ctx, chatID, docstore.MaxBatchSize)
	span.End(err)
	if err != nil {
		return err
	}
	observability.Logger.InfoContext(ctx, "chat deleted",
		userIDAttr(callerID),
		slog.String("chat_id", chatID),
		slog.Int("messages", n),
	)
	return nil
}
