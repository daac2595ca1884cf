package models

import "time"

// MaxMessageLength is the upper bound on a message body, in runes.
const MaxMessageLength = 500

// ChatRoom is a conversation between two users about one book.
// The participant pair is unordered: user1 is whoever opened the room first.
type ChatRoom struct {
	ID            string    `json:"id"`
	User1ID       string    `json:"user1_id"`
	User2ID       string    `json:"user2_id"`
	User1Username string    `json:"user1_username"`
	User2Username string    `json:"user2_username"`
	BookTitle     string    `json:"book_title"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	LastMessage   *string   `json:"last_message,omitempty"` // preview of the newest message
	UnreadCount   int       `json:"unread_count"`           // per viewer
}

// Participants returns both user ids of the room.
func (r ChatRoom) Participants() [2]string {
	return [2]string{r.User1ID, r.User2ID}
}

// HasParticipant reports whether userID is one side of the room.
func (r ChatRoom) HasParticipant(userID string) bool {
	return userID != "" && (r.User1ID == userID || r.User2ID == userID)
}

// Preview returns the last message preview or "" when the room is empty.
func (r ChatRoom) Preview() string {
	if r.LastMessage == nil {
		return ""
	}
	return *r.LastMessage
}

// ChatMessage is one immutable message inside a room.
type ChatMessage struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"chat_room_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Body           string    `json:"message"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsFrom keys authorship on the stable sender id, never on the username.
func (m ChatMessage) IsFrom(userID string) bool {
	return userID != "" && m.SenderID == userID
}

// RoomWithMessages is a room plus its full history, ascending by CreatedAt.
type RoomWithMessages struct {
	ChatRoom
	Messages []ChatMessage `json:"messages"`
}

// CreateRoomRequest is the body of POST /chat/rooms.
type CreateRoomRequest struct {
	OtherUserID string `json:"other_user_id"`
	BookTitle   string `json:"book_title"`
}

// SendMessageRequest is the body of POST /chat/rooms/{id}/messages.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON error envelope used by the backend.
type ErrorResponse struct {
	Error string `json:"error"`
}
