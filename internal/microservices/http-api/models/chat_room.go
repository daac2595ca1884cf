package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRoom is one conversation between two users about one book.
// PairLow/PairHigh hold the participant ids in sorted order so the unique
// index covers the unordered pair.
type ChatRoom struct {
	ID            string    `gorm:"primaryKey;type:uuid"`
	User1ID       string    `gorm:"type:uuid;not null;index"`
	User2ID       string    `gorm:"type:uuid;not null;index"`
	PairLow       string    `gorm:"type:uuid;not null;uniqueIndex:idx_chat_rooms_pair_book,priority:1"`
	PairHigh      string    `gorm:"type:uuid;not null;uniqueIndex:idx_chat_rooms_pair_book,priority:2"`
	BookTitle     string    `gorm:"not null;uniqueIndex:idx_chat_rooms_pair_book,priority:3"`
	CreatedAt     time.Time `gorm:"not null"`
	LastMessageAt time.Time `gorm:"not null;index"`

	// Associations
	User1 *User `gorm:"foreignKey:User1ID"`
	User2 *User `gorm:"foreignKey:User2ID"`
}

// OrderedPair returns a and b sorted ascending.
func OrderedPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

func (room *ChatRoom) BeforeCreate(tx *gorm.DB) (err error) {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	room.PairLow, room.PairHigh = OrderedPair(room.User1ID, room.User2ID)
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	if room.LastMessageAt.IsZero() {
		room.LastMessageAt = room.CreatedAt
	}
	return
}

// HasParticipant reports whether userID is one side of the room.
func (room *ChatRoom) HasParticipant(userID string) bool {
	return room.User1ID == userID || room.User2ID == userID
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}
