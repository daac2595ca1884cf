package repository

import (
	"context"
	"time"

	"bookswap/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// ChatRepository persists rooms and messages.
type ChatRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	FindRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)
	FindRoomByPair(ctx context.Context, userA, userB, bookTitle string) (*models.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.ChatRoom, error)
	DeleteRoom(ctx context.Context, roomID string) error

	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	LastMessages(ctx context.Context, roomIDs []string) (map[string]string, error)
	UnreadCounts(ctx context.Context, viewerID string, roomIDs []string) (map[string]int, error)
	MarkRead(ctx context.Context, roomID, viewerID string) (int64, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *chatRepository) FindRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("User1").Preload("User2").
		First(&room, "id = ?", roomID).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) FindRoomByPair(ctx context.Context, userA, userB, bookTitle string) (*models.ChatRoom, error) {
	low, high := models.OrderedPair(userA, userB)
	var room models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("User1").Preload("User2").
		Where("pair_low = ? AND pair_high = ? AND book_title = ?", low, high, bookTitle).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) ListRoomsForUser(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("User1").Preload("User2").
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// DeleteRoom removes the room and its messages in one transaction.
func (r *chatRepository) DeleteRoom(ctx context.Context, roomID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_room_id = ?", roomID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", roomID).Delete(&models.ChatRoom{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CreateMessage inserts msg and bumps the room's last_message_at.
func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatRoom{}).
			Where("id = ?", msg.RoomID).
			Update("last_message_at", msg.CreatedAt).Error
	})
}

func (r *chatRepository) ListMessages(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("chat_room_id = ?", roomID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *chatRepository) LastMessages(ctx context.Context, roomIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(roomIDs))
	for _, id := range roomIDs {
		var msg models.ChatMessage
		err := r.db.WithContext(ctx).
			Where("chat_room_id = ?", id).
			Order("created_at DESC").
			Limit(1).
			Find(&msg).Error
		if err != nil {
			return nil, err
		}
		if msg.ID != "" {
			out[id] = msg.Message
		}
	}
	return out, nil
}

// UnreadCounts counts, per room, messages from the other party not yet read by viewerID.
func (r *chatRepository) UnreadCounts(ctx context.Context, viewerID string, roomIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		RoomID string `gorm:"column:chat_room_id"`
		Count  int    `gorm:"column:unread"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Select("chat_room_id, COUNT(*) AS unread").
		Where("chat_room_id IN ? AND sender_id <> ? AND is_read = ?", roomIDs, viewerID, false).
		Group("chat_room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RoomID] = row.Count
	}
	return out, nil
}

// MarkRead flags the other party's messages in the room as read by viewerID.
func (r *chatRepository) MarkRead(ctx context.Context, roomID, viewerID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("chat_room_id = ? AND sender_id <> ? AND is_read = ?", roomID, viewerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
