package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessage struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	RoomID    string    `gorm:"column:chat_room_id;type:uuid;not null;index:idx_chat_messages_room_created,priority:1"`
	SenderID  string    `gorm:"type:uuid;not null;index"`
	Message   string    `gorm:"type:text;not null"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_messages_room_created,priority:2"`

	// Associations
	Sender *User `gorm:"foreignKey:SenderID"`
}

func (msg *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
