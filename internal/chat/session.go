package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bookswap/pkg/models"
)

// Identity is the signed-in user, passed explicitly instead of read from globals.
type Identity struct {
	UserID   string
	Username string
}

// SessionConfig tunes the pollers a session creates. Zero values get defaults.
type SessionConfig struct {
	MessagePollInterval  time.Duration
	RoomListPollInterval time.Duration
	CallTimeout          time.Duration
	Logger               *slog.Logger

	// OnInvalidated fires once, when the backend rejects the session.
	OnInvalidated func(err error)
}

// halter is anything a session must stop on logout.
type halter interface {
	Stop()
}

// Session ties the sync components of one signed-in user together and halts
// all of them when the backend answers 401.
type Session struct {
	identity  Identity
	transport Transport
	cfg       SessionConfig
	logger    *slog.Logger

	store  *RoomStore
	unread *UnreadAggregator

	mu      sync.Mutex
	pollers []halter
	closed  bool
	reason  error
}

// NewSession builds the store and aggregator for identity.
func NewSession(transport Transport, identity Identity, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("user_id", identity.UserID)
	store := NewRoomStore(transport, logger)
	return &Session{
		identity:  identity,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		store:     store,
		unread:    NewUnreadAggregator(store),
	}
}

func (s *Session) Identity() Identity { return s.identity }

func (s *Session) Store() *RoomStore { return s.store }

func (s *Session) Unread() *UnreadAggregator { return s.unread }

func (s *Session) Transport() Transport { return s.transport }

// OtherParticipant returns the user id on the other side of room.
func (s *Session) OtherParticipant(room models.ChatRoom) string {
	return OtherParticipant(room, s.identity.UserID)
}

// IsMine reports whether msg was sent by the session user. Authorship is
// decided by sender id only; usernames can collide or change.
func (s *Session) IsMine(msg models.ChatMessage) bool {
	return msg.IsFrom(s.identity.UserID)
}

// NewMessagePoller creates a poller registered for halting. The store, logger,
// intervals and auth handling are filled in from the session.
func (s *Session) NewMessagePoller(cfg MessagePollerConfig) (*MessagePoller, error) {
	if cfg.Interval == 0 {
		cfg.Interval = s.cfg.MessagePollInterval
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = s.cfg.CallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	cfg.Store = s.store
	cfg.OnAuthFailure = s.Invalidate

	p := NewMessagePoller(s.transport, cfg)
	if err := s.register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewRoomListPoller creates the room list poller registered for halting.
func (s *Session) NewRoomListPoller() (*RoomListPoller, error) {
	p := NewRoomListPoller(s.store, RoomListPollerConfig{
		Interval:      s.cfg.RoomListPollInterval,
		CallTimeout:   s.cfg.CallTimeout,
		Logger:        s.logger,
		OnAuthFailure: s.Invalidate,
	})
	if err := s.register(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Session) register(p halter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.pollers = append(s.pollers, p)
	return nil
}

// Invalidate ends the session: every poller is stopped and OnInvalidated runs
// once. Errors other than ErrAuth are ignored.
func (s *Session) Invalidate(err error) {
	if err != nil && !errors.Is(err, ErrAuth) {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.reason = err
	pollers := s.pollers
	s.pollers = nil
	s.mu.Unlock()

	s.logger.Warn("session_invalidated", "pollers", len(pollers), "error", err)
	for _, p := range pollers {
		p.Stop()
	}
	if s.cfg.OnInvalidated != nil {
		s.cfg.OnInvalidated(err)
	}
}

// HandleUnauthorized is meant as a transport's 401 hook, so foreground calls
// outside the pollers also end the session. Calls made by a poll tick are
// left to that poller, which reports them once its loop has detached.
func (s *Session) HandleUnauthorized(ctx context.Context, err error) {
	if InPollTick(ctx) {
		return
	}
	s.Invalidate(err)
}

// Close stops every poller without treating it as an auth failure.
func (s *Session) Close() {
	s.mu.Lock()
	pollers := s.pollers
	s.pollers = nil
	s.closed = true
	s.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
	s.unread.Close()
}

// Closed reports whether the session has ended, and why.
func (s *Session) Closed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.reason
}
