package chat

import (
	"sync"

	"bookswap/pkg/models"
)

// MessageList is one room's history: ordered by CreatedAt, unique by id.
// Both the poll tick and the local send path write into it.
type MessageList struct {
	mu       sync.RWMutex
	messages []models.ChatMessage
	ids      map[string]struct{}
}

// NewMessageList returns an empty list.
func NewMessageList() *MessageList {
	return &MessageList{ids: make(map[string]struct{})}
}

// Len returns the number of messages held.
func (l *MessageList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Messages returns a copy of the list.
func (l *MessageList) Messages() []models.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Contains reports whether a message id is already held.
func (l *MessageList) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Append adds a locally sent message. Known ids are ignored; otherwise the
// message is placed after the last entry not newer than it.
func (l *MessageList) Append(msg models.ChatMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[msg.ID]; ok {
		return false
	}
	l.insert(msg)
	return true
}

func (l *MessageList) insert(msg models.ChatMessage) {
	i := len(l.messages)
	for i > 0 && l.messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	l.messages = append(l.messages, models.ChatMessage{})
	copy(l.messages[i+1:], l.messages[i:])
	l.messages[i] = msg
	l.ids[msg.ID] = struct{}{}
}

// Merge folds a full server history into the list and returns the messages
// that were not held before, in server order.
//
// The server list is append-only and authoritative, so its order is adopted
// as-is. Messages held locally but absent from the snapshot were sent after
// the snapshot was taken; they are kept and slotted in by CreatedAt.
func (l *MessageList) Merge(server []models.ChatMessage) []models.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fresh []models.ChatMessage
	seen := make(map[string]struct{}, len(server))
	for _, m := range server {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if _, ok := l.ids[m.ID]; !ok {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	var pending []models.ChatMessage
	for _, m := range l.messages {
		if _, ok := seen[m.ID]; !ok {
			pending = append(pending, m)
		}
	}

	l.messages = make([]models.ChatMessage, 0, len(seen)+len(pending))
	l.ids = make(map[string]struct{}, len(seen)+len(pending))
	for _, m := range server {
		if _, ok := l.ids[m.ID]; ok {
			continue
		}
		l.messages = append(l.messages, m)
		l.ids[m.ID] = struct{}{}
	}
	for _, m := range pending {
		l.insert(m)
	}
	return fresh
}

// Reset empties the list.
func (l *MessageList) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
	l.ids = make(map[string]struct{})
}
