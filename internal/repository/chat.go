package repository

import (
	"context"

	"threadline/internal/docstore"
	"threadline/internal/models"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	ListByParticipant(ctx context.Context, userID string) ([]*models.Chat, error)
	// AddMessage stores msg and updates the chat's lastMessage in one transaction.
	AddMessage(ctx context.Context, chatID string, msg *models.Message) error
	ListMessages(ctx context.Context, chatID string, limit int) ([]*models.Message, error)
	// DeleteCascade deletes every message of the chat in batches of at most
	// batchSize, then the chat itself, and returns the messages deleted.
	DeleteCascade(ctx context.Context, chatID string, batchSize int) (int, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	store docstore.Store
}

// NewChatRepository creates a new chat repository
func NewChatRepository(store docstore.Store) ChatRepository {
	return &chatRepository{store: store}
}

func messagesOf(chatID string) string {
	return docstore.SubCollection(models.CollectionChats, chatID, models.CollectionMessages)
}

func (r *chatRepository) Create(ctx context.Context, chat *models.Chat) error {
	return mapStoreError(r.store.Create(ctx, models.CollectionChats, chat.ID, chat), "Chat", chat.ID)
}

func (r *chatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	snap, err := r.store.Get(ctx, models.CollectionChats, id)
	if err != nil {
		return nil, mapStoreError(err, "Chat", id)
	}
	return decode[models.Chat](snap)
}

func (r *chatRepository) ListByParticipant(ctx context.Context, userID string) ([]*models.Chat, error) {
	q := docstore.From(models.CollectionChats).Where("participants", docstore.OpArrayContains, userID)
	snaps, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, mapStoreError(err, "Chat", userID)
	}
	return decodeAll[models.Chat](snaps)
}

func (r *chatRepository) AddMessage(ctx context.Context, chatID string, msg *models.Message) error {
	err := r.store.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(models.CollectionChats, chatID); err != nil {
			return err
		}
		if err := tx.Create(messagesOf(chatID), msg.ID, msg); err != nil {
			return err
		}
		return tx.Update(models.CollectionChats, chatID,
			docstore.Field("lastMessage", msg.Text),
			docstore.Field("updatedAt", msg.CreatedAt),
		)
	})
	return mapStoreError(err, "Chat", chatID)
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]*models.Message, error) {
	q := docstore.From(messagesOf(chatID)).OrderBy("createdAt", docstore.Asc).Limit(limit)
	snaps, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, mapStoreError(err, "Chat", chatID)
	}
	return decodeAll[models.Message](snaps)
}

func (r *chatRepository) DeleteCascade(ctx context.Context, chatID string, batchSize int) (int, error) {
	if batchSize <= 0 || batchSize > docstore.MaxBatchSize {
		batchSize = docstore.MaxBatchSize
	}
	col := messagesOf(chatID)
	deleted := 0
	for {
		snaps, err := r.store.Query(ctx, docstore.From(col).Limit(batchSize))
		if err != nil {
			return deleted, mapStoreError(err, "Chat", chatID)
		}
		if len(snaps) == 0 {
			break
		}
		b := r.store.Batch()
		for _, s := range snaps {
			b.Delete(col, s.ID)
		}
		if err := b.Commit(ctx); err != nil {
			return deleted, mapStoreError(err, "Chat", chatID)
		}
		deleted += len(snaps)
	}
	if err := r.store.Delete(ctx, models.CollectionChats, chatID); err != nil {
		return deleted, mapStoreError(err, "Chat", chatID)
	}
	return deleted, nil
}
