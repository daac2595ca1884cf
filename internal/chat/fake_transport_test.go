package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookswap/pkg/models"
)

// fakeTransport is an in-memory backend for one signed-in user.
type fakeTransport struct {
	mu      sync.Mutex
	me      string
	rooms   map[string]*models.RoomWithMessages
	unread  map[string]int
	nextID  int
	clock   time.Time
	listErr error
	getErr  error
	sendErr error

	// listGate, when set, blocks ListRooms until closed.
	listGate chan struct{}

	listCalls   int
	getCalls    map[string]int
	sendCalls   int
	createCalls int
	deleteCalls int
}

func newFakeTransport(me string) *fakeTransport {
	return &fakeTransport{
		me:       me,
		rooms:    make(map[string]*models.RoomWithMessages),
		unread:   make(map[string]int),
		getCalls: make(map[string]int),
		clock:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeTransport) tickClock() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeTransport) addRoom(id, other, title string, unread int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tickClock()
	f.rooms[id] = &models.RoomWithMessages{ChatRoom: models.ChatRoom{
		ID: id, User1ID: f.me, User2ID: other,
		User1Username: "me", User2Username: other,
		BookTitle: title, CreatedAt: now, LastMessageAt: now,
	}}
	f.unread[id] = unread
}

// deliver appends a message from sender as if another client had sent it.
func (f *fakeTransport) deliver(roomID, sender, body string) models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLocked(roomID, sender, body)
}

func (f *fakeTransport) appendLocked(roomID, sender, body string) models.ChatMessage {
	f.nextID++
	room := f.rooms[roomID]
	msg := models.ChatMessage{
		ID:             fmt.Sprintf("m%03d", f.nextID),
		RoomID:         roomID,
		SenderID:       sender,
		SenderUsername: sender,
		Body:           body,
		CreatedAt:      f.tickClock(),
	}
	room.Messages = append(room.Messages, msg)
	room.LastMessageAt = msg.CreatedAt
	preview := body
	room.LastMessage = &preview
	if sender != f.me {
		f.unread[roomID]++
	}
	return msg
}

func (f *fakeTransport) removeRoom(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}

func (f *fakeTransport) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeTransport) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeTransport) setUnread(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[id] = n
}

func (f *fakeTransport) calls() (list, send, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.sendCalls, f.createCalls
}

func (f *fakeTransport) getCallsFor(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[roomID]
}

func (f *fakeTransport) CreateOrGetRoom(ctx context.Context, otherUserID, bookTitle string) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	for _, r := range f.rooms {
		if r.BookTitle == bookTitle && r.HasParticipant(otherUserID) {
			room := r.ChatRoom
			return &room, nil
		}
	}
	f.nextID++
	id := fmt.Sprintf("r%03d", f.nextID)
	now := f.tickClock()
	f.rooms[id] = &models.RoomWithMessages{ChatRoom: models.ChatRoom{
		ID: id, User1ID: f.me, User2ID: otherUserID, BookTitle: bookTitle,
		CreatedAt: now, LastMessageAt: now,
	}}
	room := f.rooms[id].ChatRoom
	return &room, nil
}

func (f *fakeTransport) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &APIError{Op: "list_rooms", Kind: ErrNetwork, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.ChatRoom, 0, len(f.rooms))
	for id, r := range f.rooms {
		room := r.ChatRoom
		room.UnreadCount = f.unread[id]
		out = append(out, room)
	}
	return out, nil
}

func (f *fakeTransport) GetRoomWithMessages(ctx context.Context, roomID string) (*models.RoomWithMessages, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[roomID]++
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.rooms[roomID]
	if !ok {
		return nil, &APIError{Op: "get_room", Status: 404, Message: "Chat room not found", Kind: ErrNotFound}
	}
	f.unread[roomID] = 0
	out := *r
	out.Messages = append([]models.ChatMessage(nil), r.Messages...)
	return &out, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, roomID, body string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if _, ok := f.rooms[roomID]; !ok {
		return nil, &APIError{Op: "send_message", Status: 404, Kind: ErrNotFound}
	}
	msg := f.appendLocked(roomID, f.me, body)
	return &msg, nil
}

func (f *fakeTransport) DeleteRoom(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if _, ok := f.rooms[roomID]; !ok {
		return &APIError{Op: "delete_room", Status: 404, Kind: ErrNotFound}
	}
	delete(f.rooms, roomID)
	return nil
}

var (
	errOffline = &APIError{Op: "test", Kind: ErrNetwork, Message: "dial tcp: connection refused"}
	errExpired = &APIError{Op: "test", Status: 401, Kind: ErrAuth, Message: "token expired"}
)
