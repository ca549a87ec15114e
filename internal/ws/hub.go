package ws

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const subscriberBuffer = 64

// Hub fans board messages out to websocket subscribers. Delivery is
// best-effort: a subscriber whose buffer is full misses the message
// rather than stalling the broadcaster.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Message
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Message)}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The snapshot message is enqueued before registration completes, so the
// subscriber always receives it ahead of any subsequent broadcast.
func (h *Hub) Subscribe(snapshot Message) (string, <-chan Message) {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	ch := make(chan Message, subscriberBuffer)
	ch <- snapshot

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Broadcast sends a message to every subscriber without blocking.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			slog.Warn("websocket subscriber buffer full, dropping message",
				"subscriber", id, "type", msg.Type)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
