// Package notify delivers new notifications to listening clients while
// they are connected. Delivery is best effort: a client that is not
// listening, or is too slow, simply reads the notification from the
// notifications list later.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/izzacatering/backend/internal/models"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

type subscriber struct {
	userID string
	ch     chan models.Notification
}

// Hub fans notifications out to in-process subscribers.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber

	dropped atomic.Int64
}

// NewHub returns a hub whose subscribers each queue up to buffer
// notifications.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[int]*subscriber)}
}

// Subscribe returns a channel of the notifications visible to userID
// (addressed to them, or broadcast) and a cancel func that closes it.
func (h *Hub) Subscribe(userID string) (<-chan models.Notification, func()) {
	sub := &subscriber{userID: userID, ch: make(chan models.Notification, h.buffer)}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers n locally. It never fails; it satisfies the store's
// Publisher interface.
func (h *Hub) Publish(_ context.Context, n models.Notification) error {
	h.Deliver(n)
	return nil
}

// Deliver hands n to every matching subscriber without blocking. A
// subscriber whose queue is full misses n.
func (h *Hub) Deliver(n models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !n.VisibleTo(sub.userID) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
