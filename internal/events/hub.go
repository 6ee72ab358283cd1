package events

import (
	"container/ring"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultHistorySize is the number of recent events replayed to a new subscriber.
	DefaultHistorySize = 200
	subscriberBuffer   = 256
)

// Hub buffers recent events and broadcasts them to subscribers. Slow subscribers miss events
// rather than blocking the pipeline.
type Hub struct {
	mu          sync.RWMutex
	history     *ring.Ring
	subscribers map[string]chan Event
	closed      bool
}

// NewHub returns a hub that keeps the last size events.
func NewHub(size int) *Hub {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Hub{
		history:     ring.New(size),
		subscribers: make(map[string]chan Event),
	}
}

// Emit records the event and forwards it to every subscriber.
func (h *Hub) Emit(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.history.Value = evt
	h.history = h.history.Next()

	for id, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			log.Warn().Str("subscriber", id).Str("type", evt.Type).Msg("monitor subscriber blocked, dropping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber and returns its id, its channel and a snapshot of the history.
func (h *Hub) Subscribe() (string, <-chan Event, []Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return id, ch, nil
	}
	h.subscribers[id] = ch
	return id, ch, h.snapshot()
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// History returns the buffered events, oldest first.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot()
}

// Subscribers reports how many subscribers are attached.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close detaches every subscriber. Later emits are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

func (h *Hub) snapshot() []Event {
	out := make([]Event, 0, h.history.Len())
	h.history.Do(func(v interface{}) {
		if evt, ok := v.(Event); ok {
			out = append(out, evt)
		}
	})
	return out
}
