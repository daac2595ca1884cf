package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bookswap/pkg/models"
)

const (
	DefaultMessagePollInterval = 3 * time.Second
	DefaultCallTimeout         = 15 * time.Second
)

// MessagePollerConfig wires a MessagePoller. Zero values get defaults.
type MessagePollerConfig struct {
	Interval    time.Duration
	CallTimeout time.Duration
	Store       *RoomStore // optional; kept in sync on read and NotFound
	Logger      *slog.Logger

	// OnNewMessages runs on the poll goroutine whenever a tick finds messages
	// not held before; the view scrolls to the newest one. It must not call Stop.
	OnNewMessages func(room models.ChatRoom, fresh []models.ChatMessage)
	// OnRoomGone fires once when the backend reports the room no longer exists.
	OnRoomGone func(roomID string)
	// OnAuthFailure receives the ErrAuth that ended polling.
	OnAuthFailure func(err error)
}

// MessagePoller keeps one room's message list fresh by polling the full
// history on a fixed interval while the room view is active.
type MessagePoller struct {
	transport Transport
	cfg       MessagePollerConfig
	logger    *slog.Logger
	loop      *pollLoop
	ticks     atomic.Int64

	mu     sync.RWMutex
	roomID string
	list   *MessageList
}

// NewMessagePoller returns a stopped poller.
func NewMessagePoller(transport Transport, cfg MessagePollerConfig) *MessagePoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMessagePollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagePoller{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		loop:      newPollLoop(cfg.Interval),
		list:      NewMessageList(),
	}
}

// Start begins polling roomID. Starting the room already being polled is a
// no-op; starting another room stops the current timer first.
func (p *MessagePoller) Start(roomID string) {
	p.mu.RLock()
	list := p.list
	if p.roomID != roomID {
		list = NewMessageList()
	}
	p.mu.RUnlock()

	started := p.loop.start(roomID, func(ctx context.Context) bool {
		return p.tick(ctx, roomID, list)
	})
	if !started {
		return
	}
	p.mu.Lock()
	p.roomID = roomID
	p.list = list
	p.mu.Unlock()
	p.logger.Info("message_polling_started", "room_id", roomID, "interval", p.cfg.Interval)
}

// Stop cancels the timer and any in-flight fetch. Once Stop returns no
// further tick or callback runs. Safe to call when already stopped.
func (p *MessagePoller) Stop() {
	if st, roomID := p.loop.state(); st == Polling {
		p.logger.Info("message_polling_stopped", "room_id", roomID)
	}
	p.loop.stop()
}

// State reports whether the poller is running.
func (p *MessagePoller) State() PollerState {
	st, _ := p.loop.state()
	return st
}

// RoomID returns the room whose messages are held.
func (p *MessagePoller) RoomID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roomID
}

// Messages returns a copy of the held history.
func (p *MessagePoller) Messages() []models.ChatMessage {
	p.mu.RLock()
	list := p.list
	p.mu.RUnlock()
	return list.Messages()
}

// Ticks counts executed ticks since construction.
func (p *MessagePoller) Ticks() int64 {
	return p.ticks.Load()
}

// Open is the foreground load of a room: it fetches the history, surfaces any
// error to the caller, then starts polling.
func (p *MessagePoller) Open(ctx context.Context, roomID string) (*models.RoomWithMessages, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	room, err := p.transport.GetRoomWithMessages(callCtx, roomID)
	if err != nil {
		p.handleForegroundError(roomID, err)
		return nil, err
	}

	p.mu.Lock()
	if p.roomID != roomID {
		p.roomID = roomID
		p.list = NewMessageList()
	}
	list := p.list
	p.mu.Unlock()
	list.Merge(room.Messages)

	if p.cfg.Store != nil {
		p.cfg.Store.MarkRead(roomID)
	}
	p.Start(roomID)
	return room, nil
}

// Send validates and posts body to the open room, then appends the created
// message locally. Validation failures never reach the network.
func (p *MessagePoller) Send(ctx context.Context, body string) (*models.ChatMessage, error) {
	if err := ValidateMessageBody(body); err != nil {
		return nil, err
	}
	p.mu.RLock()
	roomID, list := p.roomID, p.list
	p.mu.RUnlock()
	if roomID == "" {
		return nil, fmt.Errorf("%w: no room is open", ErrValidation)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	msg, err := p.transport.SendMessage(callCtx, roomID, body)
	if err != nil {
		p.handleForegroundError(roomID, err)
		return nil, err
	}
	list.Append(*msg)
	return msg, nil
}

func (p *MessagePoller) handleForegroundError(roomID string, err error) {
	switch {
	case errors.Is(err, ErrAuth):
		if p.cfg.OnAuthFailure != nil {
			p.cfg.OnAuthFailure(err)
		}
	case errors.Is(err, ErrNotFound):
		if p.cfg.Store != nil {
			p.cfg.Store.Drop(roomID)
		}
	}
}

// tick returns false to end the loop.
func (p *MessagePoller) tick(ctx context.Context, roomID string, list *MessageList) bool {
	p.ticks.Add(1)

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	room, err := p.transport.GetRoomWithMessages(callCtx, roomID)
	if ctx.Err() != nil {
		// stopped while the request was in flight
		return true
	}
	if err != nil {
		return p.tickFailed(roomID, err)
	}

	fresh := list.Merge(room.Messages)
	if len(fresh) == 0 {
		return true
	}
	p.logger.Debug("messages_received", "room_id", roomID, "count", len(fresh), "total", list.Len())
	if p.cfg.Store != nil {
		p.cfg.Store.MarkRead(roomID)
	}
	if p.cfg.OnNewMessages != nil {
		p.cfg.OnNewMessages(room.ChatRoom, fresh)
	}
	return true
}

func (p *MessagePoller) tickFailed(roomID string, err error) bool {
	switch {
	case errors.Is(err, ErrAuth):
		p.logger.Warn("message_poll_unauthorized", "room_id", roomID, "error", err)
		if p.cfg.OnAuthFailure != nil {
			// the loop detaches once we return; the handler may stop every poller
			go p.cfg.OnAuthFailure(err)
		}
		return false
	case errors.Is(err, ErrNotFound):
		p.logger.Warn("message_poll_room_gone", "room_id", roomID, "error", err)
		if p.cfg.Store != nil {
			p.cfg.Store.Drop(roomID)
		}
		if p.cfg.OnRoomGone != nil {
			go p.cfg.OnRoomGone(roomID)
		}
		return false
	default:
		// background failures are swallowed; the next tick retries
		p.logger.Warn("message_poll_failed", "room_id", roomID, "error", err)
		return true
	}
}
