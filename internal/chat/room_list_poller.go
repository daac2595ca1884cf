package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultRoomListPollInterval = 10 * time.Second

// RoomListPollerConfig wires a RoomListPoller. Zero values get defaults.
type RoomListPollerConfig struct {
	Interval      time.Duration
	CallTimeout   time.Duration
	Logger        *slog.Logger
	OnAuthFailure func(err error)
}

// RoomListPoller refreshes the room store on a fixed interval while the room
// list view has focus. Stale data while unfocused is acceptable.
type RoomListPoller struct {
	store  *RoomStore
	cfg    RoomListPollerConfig
	logger *slog.Logger
	loop   *pollLoop
	ticks  atomic.Int64
}

// NewRoomListPoller returns a stopped poller over store.
func NewRoomListPoller(store *RoomStore, cfg RoomListPollerConfig) *RoomListPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRoomListPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomListPoller{
		store:  store,
		cfg:    cfg,
		logger: logger,
		loop:   newPollLoop(cfg.Interval),
	}
}

// Start arms the refresh timer. No-op while already polling.
func (p *RoomListPoller) Start() {
	if p.loop.start(refreshKey, p.tick) {
		p.logger.Info("room_list_polling_started", "interval", p.cfg.Interval)
	}
}

// Stop cancels the timer and any in-flight refresh; no tick runs after it returns.
func (p *RoomListPoller) Stop() {
	if p.State() == Polling {
		p.logger.Info("room_list_polling_stopped")
	}
	p.loop.stop()
}

// State reports whether the poller is running.
func (p *RoomListPoller) State() PollerState {
	st, _ := p.loop.state()
	return st
}

// Ticks counts executed ticks since construction.
func (p *RoomListPoller) Ticks() int64 {
	return p.ticks.Load()
}

// Focus is called when the room list view becomes active: it refreshes once
// in the foreground, returning any error, and starts polling.
func (p *RoomListPoller) Focus(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	err := p.store.Refresh(callCtx)
	if errors.Is(err, ErrAuth) {
		if p.cfg.OnAuthFailure != nil {
			p.cfg.OnAuthFailure(err)
		}
		return err
	}
	p.Start()
	return err
}

// Blur is called when the room list view loses focus.
func (p *RoomListPoller) Blur() {
	p.Stop()
}

func (p *RoomListPoller) tick(ctx context.Context) bool {
	p.ticks.Add(1)

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	err := p.store.Refresh(callCtx)
	if err == nil || ctx.Err() != nil {
		return true
	}
	if errors.Is(err, ErrAuth) {
		p.logger.Warn("room_list_poll_unauthorized", "error", err)
		if p.cfg.OnAuthFailure != nil {
			go p.cfg.OnAuthFailure(err)
		}
		return false
	}
	p.logger.Warn("room_list_poll_failed", "error", err)
	return true
}
