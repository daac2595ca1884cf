// Package chat implements the polling-based message synchronization layer:
// the room snapshot store, the room list and message pollers, and the unread
// count aggregator. The backend is reached only through Transport.
package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"bookswap/pkg/models"
)

// Transport is the backend surface the sync layer depends on.
type Transport interface {
	// CreateOrGetRoom is idempotent over the unordered pair and book title.
	CreateOrGetRoom(ctx context.Context, otherUserID, bookTitle string) (*models.ChatRoom, error)
	// ListRooms returns every room of the current user with unread counts and previews.
	ListRooms(ctx context.Context) ([]models.ChatRoom, error)
	// GetRoomWithMessages returns the full history ascending by creation time.
	GetRoomWithMessages(ctx context.Context, roomID string) (*models.RoomWithMessages, error)
	SendMessage(ctx context.Context, roomID, body string) (*models.ChatMessage, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// ValidateMessageBody rejects bodies the backend would refuse.
func ValidateMessageBody(body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return validationError("message body is empty")
	}
	if n := utf8.RuneCountInString(trimmed); n > models.MaxMessageLength {
		return validationError("message body is %d characters, limit is %d", n, models.MaxMessageLength)
	}
	return nil
}

// ValidateBookTitle rejects an empty book title.
func ValidateBookTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return validationError("book title is empty")
	}
	return nil
}
