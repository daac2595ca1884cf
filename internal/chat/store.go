package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bookswap/pkg/models"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "rooms"

// Snapshot is what change listeners receive. FromRefresh is set only when the
// rooms came from the backend list, not from a local edit. Rooms is shared by
// all listeners of one change and must not be modified.
type Snapshot struct {
	Rooms       []models.ChatRoom
	FromRefresh bool
}

// RoomStore holds the latest snapshot of the current user's rooms.
// The snapshot is replaced wholesale by Refresh; the server is the source of truth.
type RoomStore struct {
	transport Transport
	logger    *slog.Logger

	mu        sync.RWMutex
	rooms     []models.ChatRoom
	listeners map[int]func(Snapshot)
	nextID    int

	sf singleflight.Group // at most one ListRooms in flight
}

// NewRoomStore creates an empty store backed by transport.
func NewRoomStore(transport Transport, logger *slog.Logger) *RoomStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomStore{
		transport: transport,
		logger:    logger,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Refresh fetches the room list and replaces the snapshot.
// A call made while another refresh is in flight joins it and gets its result
// instead of issuing a second request, so a slow stale response can never
// overwrite a newer one.
func (s *RoomStore) Refresh(ctx context.Context) error {
	_, err, shared := s.sf.Do(refreshKey, func() (any, error) {
		rooms, err := s.transport.ListRooms(ctx)
		if err != nil {
			return nil, err
		}
		s.replace(rooms)
		return nil, nil
	})
	if shared {
		s.logger.Debug("room_refresh_joined")
	}
	return err
}

func (s *RoomStore) replace(rooms []models.ChatRoom) {
	snapshot := make([]models.ChatRoom, len(rooms))
	copy(snapshot, rooms)

	s.mu.Lock()
	s.rooms = snapshot
	s.mu.Unlock()

	s.logger.Debug("room_snapshot_replaced", "rooms", len(snapshot))
	s.notify(true)
}

// Rooms returns a copy of the current snapshot.
func (s *RoomStore) Rooms() []models.ChatRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatRoom, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// Room looks up one room in the snapshot.
func (s *RoomStore) Room(roomID string) (models.ChatRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.ID == roomID {
			return r, true
		}
	}
	return models.ChatRoom{}, false
}

// OtherParticipant resolves which side of the pair is not currentUserID.
func (s *RoomStore) OtherParticipant(room models.ChatRoom, currentUserID string) string {
	return OtherParticipant(room, currentUserID)
}

// OtherParticipant returns the user id on the other side of the room from currentUserID.
// It returns "" when currentUserID is not a participant.
func OtherParticipant(room models.ChatRoom, currentUserID string) string {
	switch currentUserID {
	case "":
		return ""
	case room.User1ID:
		return room.User2ID
	case room.User2ID:
		return room.User1ID
	}
	return ""
}

// OtherUsername is OtherParticipant for display names.
func OtherUsername(room models.ChatRoom, currentUserID string) string {
	switch currentUserID {
	case "":
		return ""
	case room.User1ID:
		return room.User2Username
	case room.User2ID:
		return room.User1Username
	}
	return ""
}

// CreateOrGet opens (or reuses) the room with otherUserID about bookTitle and
// upserts it into the snapshot.
func (s *RoomStore) CreateOrGet(ctx context.Context, otherUserID, bookTitle string) (*models.ChatRoom, error) {
	if err := ValidateBookTitle(bookTitle); err != nil {
		return nil, err
	}
	if otherUserID == "" {
		return nil, validationError("other user id is empty")
	}
	room, err := s.transport.CreateOrGetRoom(ctx, otherUserID, bookTitle)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	found := false
	for i := range s.rooms {
		if s.rooms[i].ID == room.ID {
			// keep the list-only fields the create endpoint does not return
			merged := *room
			merged.UnreadCount = s.rooms[i].UnreadCount
			if merged.LastMessage == nil {
				merged.LastMessage = s.rooms[i].LastMessage
			}
			s.rooms[i] = merged
			found = true
			break
		}
	}
	if !found {
		s.rooms = append(s.rooms, *room)
	}
	s.mu.Unlock()

	s.notify(false)
	return room, nil
}

// Delete removes the room on the backend and from the snapshot.
// A room already gone on the backend is dropped locally and ErrNotFound returned.
func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	err := s.transport.DeleteRoom(ctx, roomID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.Drop(roomID)
	return err
}

// Drop removes a room from the local snapshot only.
func (s *RoomStore) Drop(roomID string) {
	s.mu.Lock()
	idx := -1
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.rooms = append(s.rooms[:idx:idx], s.rooms[idx+1:]...)
	}
	s.mu.Unlock()

	if idx >= 0 {
		s.logger.Info("room_dropped", "room_id", roomID)
		s.notify(false)
	}
}

// MarkRead zeroes one room's unread count locally; the backend does the same
// when the room is fetched.
func (s *RoomStore) MarkRead(roomID string) {
	changed := false
	s.mu.Lock()
	for i := range s.rooms {
		if s.rooms[i].ID == roomID && s.rooms[i].UnreadCount != 0 {
			s.rooms[i].UnreadCount = 0
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(false)
	}
}

// OnChange registers fn to receive every new snapshot. The returned func unregisters it.
func (s *RoomStore) OnChange(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify hands every listener the same copy, taken together with the listener set.
func (s *RoomStore) notify(fromRefresh bool) {
	s.mu.RLock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	rooms := make([]models.ChatRoom, len(s.rooms))
	copy(rooms, s.rooms)
	s.mu.RUnlock()

	snap := Snapshot{Rooms: rooms, FromRefresh: fromRefresh}
	for _, fn := range fns {
		fn(snap)
	}
}
