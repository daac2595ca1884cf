package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoomListPoller(store *RoomStore, onAuth func(error)) *RoomListPoller {
	return NewRoomListPoller(store, RoomListPollerConfig{
		Interval:      testInterval,
		CallTimeout:   time.Second,
		OnAuthFailure: onAuth,
	})
}

func TestRoomListPoller_FocusRefreshesAndPolls(t *testing.T) {
	ft := newFakeTransport("u1")
	ft.addRoom("r1", "u2", "Dune", 0)
	store := NewRoomStore(ft, nil)
	p := newTestRoomListPoller(store, nil)
	defer p.Stop()

	require.NoError(t, p.Focus(context.Background()))
	assert.Len(t, store.Rooms(), 1)
	assert.Equal(t, Polling, p.State())

	ft.addRoom("r2", "u3", "Emma", 1)
	require.Eventually(t, func() bool { return len(store.Rooms()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRoomListPoller_FocusSurfacesNetworkErrorButPolls(t *testing.T) {
	ft := newFakeTransport("u1")
	ft.setListErr(errOffline)
	store := NewRoomStore(ft, nil)
	p := newTestRoomListPoller(store, nil)
	defer p.Stop()

	err := p.Focus(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, Polling, p.State())

	ft.setListErr(nil)
	ft.addRoom("r1", "u2", "Dune", 0)
	require.Eventually(t, func() bool { return len(store.Rooms()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRoomListPoller_BlurStopsTicks(t *testing.T) {
	ft := newFakeTransport("u1")
	store := NewRoomStore(ft, nil)
	p := newTestRoomListPoller(store, nil)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool { return p.Ticks() >= 2 }, time.Second, 5*time.Millisecond)
	p.Blur()

	ticks := p.Ticks()
	time.Sleep(4 * testInterval)
	assert.Equal(t, ticks, p.Ticks())
	assert.Equal(t, Stopped, p.State())
}

func TestRoomListPoller_FocusAuthFailureDoesNotPoll(t *testing.T) {
	ft := newFakeTransport("u1")
	ft.setListErr(errExpired)
	store := NewRoomStore(ft, nil)

	var got error
	p := newTestRoomListPoller(store, func(err error) { got = err })

	err := p.Focus(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, got, ErrAuth)
	assert.Equal(t, Stopped, p.State())
}

func TestRoomListPoller_TickAuthFailureStops(t *testing.T) {
	ft := newFakeTransport("u1")
	store := NewRoomStore(ft, nil)
	authErr := make(chan error, 1)
	p := newTestRoomListPoller(store, func(err error) { authErr <- err })

	p.Start()
	ft.setListErr(errExpired)

	select {
	case err := <-authErr:
		assert.ErrorIs(t, err, ErrAuth)
	case <-time.After(time.Second):
		t.Fatal("auth failure callback not called")
	}
	require.Eventually(t, func() bool { return p.State() == Stopped }, time.Second, 5*time.Millisecond)
}
