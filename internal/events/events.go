// Package events fans execution progress out to live subscribers. The hub
// is a process-local pub/sub: the engine publishes status transitions and
// node completions, the API streams them to websocket clients.
package events

import (
	"sync"
	"time"
)

// Event is one step of an execution's life: a status transition when NodeID
// is empty, a single node's completion otherwise.
type Event struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	Status      string    `json:"status"`
	NodeID      string    `json:"node_id,omitempty"`
	NodeType    string    `json:"node_type,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Hub is an in-memory broadcast of execution events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish sends the event to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow to avoid blocking writers
		}
	}
}

// Subscribe adds a subscriber channel and returns it with an unsubscribe
// function. The channel is closed on unsubscribe and on Shutdown.
func (h *Hub) Subscribe(buf int) (chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			_, ok := h.subs[ch]
			delete(h.subs, ch)
			h.mu.Unlock()
			if ok {
				close(ch)
			}
		})
	}
	return ch, unsub
}

// Subscribers reports how many channels are currently subscribed.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown closes all subscriber channels. Publish becomes a no-op.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
