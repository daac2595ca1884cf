package chat

import (
	"sync"

	"bookswap/pkg/models"
)

// UnreadAggregator derives one unread total across all rooms of the store and
// fans it out to any number of subscribers (tab badge, list header, ...).
//
// Two layers: the authoritative sum over the latest snapshot, and a local
// override that forces the displayed value to zero until the next snapshot.
type UnreadAggregator struct {
	store *RoomStore

	mu         sync.Mutex
	overridden bool
	displayed  int
	subs       map[int]func(int)
	nextID     int
	detach     func()
}

// NewUnreadAggregator subscribes to store changes.
func NewUnreadAggregator(store *RoomStore) *UnreadAggregator {
	a := &UnreadAggregator{
		store: store,
		subs:  make(map[int]func(int)),
	}
	a.displayed = SumUnread(store.Rooms())
	a.detach = store.OnChange(a.onSnapshot)
	return a
}

// SumUnread folds unread counts over rooms.
func SumUnread(rooms []models.ChatRoom) int {
	total := 0
	for _, r := range rooms {
		if r.UnreadCount > 0 {
			total += r.UnreadCount
		}
	}
	return total
}

// Recompute is the pure fold over the store's current snapshot.
func (a *UnreadAggregator) Recompute() int {
	return SumUnread(a.store.Rooms())
}

// Total is the value shown to the user: zero while an optimistic reset is in
// effect, otherwise the last derived sum.
func (a *UnreadAggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.overridden {
		return 0
	}
	return a.displayed
}

// Reset forces the displayed total to zero locally. The next snapshot from the
// store re-derives the real value, which may raise it again.
func (a *UnreadAggregator) Reset() {
	a.mu.Lock()
	prev := a.visibleLocked()
	a.overridden = true
	a.mu.Unlock()
	if prev != 0 {
		a.publish(0)
	}
}

// Subscribe registers fn for every change of the displayed total. The returned
// func removes the subscription.
func (a *UnreadAggregator) Subscribe(fn func(total int)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// Close detaches the aggregator from the store.
func (a *UnreadAggregator) Close() {
	if a.detach != nil {
		a.detach()
	}
}

func (a *UnreadAggregator) onSnapshot(snap Snapshot) {
	a.mu.Lock()
	prev := a.visibleLocked()
	a.displayed = SumUnread(snap.Rooms)
	if snap.FromRefresh {
		// server data wins over the optimistic reset
		a.overridden = false
	}
	next := a.visibleLocked()
	a.mu.Unlock()

	if prev != next {
		a.publish(next)
	}
}

func (a *UnreadAggregator) visibleLocked() int {
	if a.overridden {
		return 0
	}
	return a.displayed
}

func (a *UnreadAggregator) publish(total int) {
	a.mu.Lock()
	fns := make([]func(int), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(total)
	}
}
