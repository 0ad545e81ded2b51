package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"coderhack/core"
)

// Hub fans domain events out to subscriber channels. Slow subscribers lose events
// rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan core.Event
	next   int
	closed bool
}

func NewHub() *Hub { return &Hub{subs: map[int]chan core.Event{}} }

// Subscribe returns an id for Unsubscribe and a channel buffered to buffer events.
// On a closed hub the channel is already closed.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan core.Event, buffer)
	if h.closed {
		close(ch)
		return 0, ch
	}
	h.next++
	id := h.next
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Broadcast matches engine.EventHandler so the hub can subscribe to the bus directly.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
