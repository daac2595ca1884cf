package chat

import (
	"context"
	"sync"
	"time"
)

// PollerState is the two-state lifecycle shared by both pollers.
type PollerState int

const (
	Stopped PollerState = iota
	Polling
)

func (s PollerState) String() string {
	if s == Polling {
		return "polling"
	}
	return "stopped"
}

// pollLoop runs tick on a fixed interval in a single goroutine.
// At most one goroutine is alive per loop; stop waits for it to exit.
type pollLoop struct {
	interval time.Duration

	opMu sync.Mutex // serializes start and stop

	mu     sync.Mutex
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

type pollTickKey struct{}

// InPollTick reports whether ctx belongs to a poller's background tick.
// Callbacks reached from a tick must not stop that poller synchronously.
func InPollTick(ctx context.Context) bool {
	return ctx != nil && ctx.Value(pollTickKey{}) != nil
}

func newPollLoop(interval time.Duration) *pollLoop {
	return &pollLoop{interval: interval}
}

// start launches the loop for key. It returns false when the loop is already
// running for the same key. A loop running for another key is stopped first.
func (l *pollLoop) start(key string, tick func(ctx context.Context) bool) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if st, running := l.state(); st == Polling && running == key {
		return false
	}
	// a different key may be running: tear it down before arming the new timer
	l.stopLocked()

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), pollTickKey{}, key))
	done := make(chan struct{})
	l.mu.Lock()
	l.key, l.cancel, l.done = key, cancel, done
	l.mu.Unlock()
	go l.run(ctx, cancel, done, tick)
	return true
}

func (l *pollLoop) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, tick func(ctx context.Context) bool) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !tick(ctx) {
				// the tick asked to end the loop; detach so stop() does not wait on us
				l.mu.Lock()
				if l.done == done {
					l.key, l.cancel, l.done = "", nil, nil
				}
				l.mu.Unlock()
				cancel()
				return
			}
		}
	}
}

// stop cancels the loop and blocks until its goroutine has exited, so no tick
// can run after stop returns. Safe to call repeatedly.
func (l *pollLoop) stop() {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	l.stopLocked()
}

func (l *pollLoop) stopLocked() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.key, l.cancel, l.done = "", nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *pollLoop) state() (PollerState, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return Stopped, ""
	}
	return Polling, l.key
}
