package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"bookswap/internal/microservices/http-api/models"
	"bookswap/internal/microservices/http-api/repository"
	pkgmodels "bookswap/pkg/models"

	"github.com/google/uuid"
)

const maxBookTitleLength = 255

var (
	ErrRoomNotFound   = errors.New("chat room not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrNotParticipant = errors.New("access denied")
	ErrInvalidMessage = errors.New("invalid message")
	ErrInvalidTitle   = errors.New("invalid book title")
	ErrSelfChat       = errors.New("cannot open a chat with yourself")
)

type ChatService interface {
	CreateOrGetRoom(ctx context.Context, userID, otherUserID, bookTitle string) (*pkgmodels.ChatRoom, error)
	ListRooms(ctx context.Context, userID string) ([]pkgmodels.ChatRoom, error)
	GetRoom(ctx context.Context, userID, roomID string) (*pkgmodels.RoomWithMessages, error)
	SendMessage(ctx context.Context, userID, roomID, body string) (*pkgmodels.ChatMessage, error)
	DeleteRoom(ctx context.Context, userID, roomID string) error
}

type chatService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	unread   *repository.UnreadRepository
	logger   *slog.Logger
}

// NewChatService wires the chat rules. unread may be nil; counters are then
// computed from SQL on every list.
func NewChatService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	unread *repository.UnreadRepository,
	logger *slog.Logger,
) ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &chatService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		unread:   unread,
		logger:   logger,
	}
}

func (s *chatService) CreateOrGetRoom(ctx context.Context, userID, otherUserID, bookTitle string) (*pkgmodels.ChatRoom, error) {
	title := strings.TrimSpace(bookTitle)
	if title == "" || utf8.RuneCountInString(title) > maxBookTitleLength {
		return nil, ErrInvalidTitle
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if _, err := uuid.Parse(otherUserID); err != nil {
		return nil, ErrUserNotFound
	}
	if otherUserID == userID {
		return nil, ErrSelfChat
	}

	existing, err := s.chatRepo.FindRoomByPair(ctx, userID, otherUserID, title)
	if err == nil {
		return toRoomDTO(existing), nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	if _, err := s.userRepo.FindByID(ctx, otherUserID); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	room := &models.ChatRoom{User1ID: userID, User2ID: otherUserID, BookTitle: title}
	if err := s.chatRepo.CreateRoom(ctx, room); err != nil {
		if !repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create room: %w", err)
		}
		// a concurrent creator won; hand back its room
		s.logger.Debug("chat_room_create_raced", "user_id", userID, "other_user_id", otherUserID)
		existing, err := s.chatRepo.FindRoomByPair(ctx, userID, otherUserID, title)
		if err != nil {
			return nil, fmt.Errorf("reread room: %w", err)
		}
		return toRoomDTO(existing), nil
	}

	created, err := s.chatRepo.FindRoomByID(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("chat_room_created", "room_id", created.ID, "user_id", userID)
	return toRoomDTO(created), nil
}

func (s *chatService) ListRooms(ctx context.Context, userID string) ([]pkgmodels.ChatRoom, error) {
	rooms, err := s.chatRepo.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
	}

	last, err := s.chatRepo.LastMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	counts, err := s.unreadCounts(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]pkgmodels.ChatRoom, 0, len(rooms))
	for i := range rooms {
		dto := toRoomDTO(&rooms[i])
		if msg, ok := last[rooms[i].ID]; ok {
			dto.LastMessage = &msg
		}
		dto.UnreadCount = counts[rooms[i].ID]
		out = append(out, *dto)
	}
	return out, nil
}

// unreadCounts prefers the Redis mirror once it has been seeded. A missing,
// partial or failing mirror falls back to SQL, and the SQL result reseeds it.
func (s *chatService) unreadCounts(ctx context.Context, userID string, roomIDs []string) (map[string]int, error) {
	load := func(ctx context.Context) (map[string]int, error) {
		return s.chatRepo.UnreadCounts(ctx, userID, roomIDs)
	}
	if !s.unread.Enabled() {
		return load(ctx)
	}

	mirrored, ok, err := s.unread.Counts(ctx, userID)
	if err != nil {
		s.logger.Warn("unread_mirror_read_failed", "user_id", userID, "error", err)
		return load(ctx)
	}
	if ok {
		return mirrored, nil
	}

	var loaded bool
	var loadErr error
	counts, err := s.unread.Seed(ctx, userID, func(ctx context.Context) (map[string]int, error) {
		loaded = true
		c, err := load(ctx)
		loadErr = err
		return c, err
	})
	if loaded {
		if loadErr != nil {
			return nil, loadErr
		}
		if err != nil {
			s.logger.Warn("unread_mirror_seed_failed", "user_id", userID, "error", err)
		}
		return counts, nil
	}
	s.logger.Warn("unread_mirror_seed_failed", "user_id", userID, "error", err)
	return load(ctx)
}

// dropMirror forgets userID's counters after a failed write so a stale hash is
// never read back as complete.
func (s *chatService) dropMirror(ctx context.Context, userID string) {
	if err := s.unread.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("unread_mirror_invalidate_failed", "user_id", userID, "error", err)
	}
}

// loadParticipantRoom resolves roomID and checks that userID belongs to it.
func (s *chatService) loadParticipantRoom(ctx context.Context, userID, roomID string) (*models.ChatRoom, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, ErrRoomNotFound
	}
	room, err := s.chatRepo.FindRoomByID(ctx, roomID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return room, nil
}

// GetRoom returns the full history and marks the other party's messages read.
func (s *chatService) GetRoom(ctx context.Context, userID, roomID string) (*pkgmodels.RoomWithMessages, error) {
	room, err := s.loadParticipantRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.chatRepo.ListMessages(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chatRepo.MarkRead(ctx, room.ID, userID); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if err := s.unread.Clear(ctx, userID, room.ID); err != nil {
		s.logger.Warn("unread_mirror_clear_failed", "room_id", room.ID, "error", err)
		s.dropMirror(ctx, userID)
	}

	out := &pkgmodels.RoomWithMessages{
		ChatRoom: *toRoomDTO(room),
		Messages: make([]pkgmodels.ChatMessage, 0, len(msgs)),
	}
	for i := range msgs {
		m := toMessageDTO(&msgs[i])
		if m.SenderID != userID {
			m.IsRead = true
		}
		out.Messages = append(out.Messages, m)
	}
	return out, nil
}

func (s *chatService) SendMessage(ctx context.Context, userID, roomID, body string) (*pkgmodels.ChatMessage, error) {
	text := strings.TrimSpace(body)
	if text == "" || utf8.RuneCountInString(text) > pkgmodels.MaxMessageLength {
		return nil, ErrInvalidMessage
	}

	room, err := s.loadParticipantRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{RoomID: room.ID, SenderID: userID, Message: text}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	recipient := room.User1ID
	if recipient == userID {
		recipient = room.User2ID
	}
	if err := s.unread.Increment(ctx, recipient, room.ID); err != nil {
		s.logger.Warn("unread_mirror_increment_failed", "room_id", room.ID, "error", err)
		s.dropMirror(ctx, recipient)
	}

	dto := toMessageDTO(msg)
	if room.User1 != nil && room.User1ID == userID {
		dto.SenderUsername = room.User1.Username
	} else if room.User2 != nil && room.User2ID == userID {
		dto.SenderUsername = room.User2.Username
	}
	return &dto, nil
}

func (s *chatService) DeleteRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.loadParticipantRoom(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if err := s.chatRepo.DeleteRoom(ctx, room.ID); err != nil {
		if repository.IsNotFound(err) {
			return ErrRoomNotFound
		}
		return err
	}
	if err := s.unread.RemoveRoom(ctx, room.ID, room.User1ID, room.User2ID); err != nil {
		s.logger.Warn("unread_mirror_remove_failed", "room_id", room.ID, "error", err)
	}
	s.logger.Info("chat_room_deleted", "room_id", room.ID, "user_id", userID)
	return nil
}

func toRoomDTO(room *models.ChatRoom) *pkgmodels.ChatRoom {
	out := &pkgmodels.ChatRoom{
		ID:            room.ID,
		User1ID:       room.User1ID,
		User2ID:       room.User2ID,
		BookTitle:     room.BookTitle,
		CreatedAt:     room.CreatedAt,
		LastMessageAt: room.LastMessageAt,
	}
	if room.User1 != nil {
		out.User1Username = room.User1.Username
	}
	if room.User2 != nil {
		out.User2Username = room.User2.Username
	}
	return out
}

func toMessageDTO(msg *models.ChatMessage) pkgmodels.ChatMessage {
	out := pkgmodels.ChatMessage{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Body:      msg.Message,
		IsRead:    msg.IsRead,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Sender != nil {
		out.SenderUsername = msg.Sender.Username
	}
	return out
}
