// Package events is an in-memory pub/sub used to surface daemon activity
// (index progress, cache sweeps, query completions) to the control API.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Well-known event types.
const (
	TypeIndexStarted  = "index.started"
	TypeIndexFinished = "index.finished"
	TypeCacheSwept    = "cache.swept"
	TypeQueryFinished = "query.finished"
	TypeLaunched      = "entry.launched"
)

type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Hub fans events out to subscribers and keeps a bounded replay buffer so
// late SSE clients can catch up on recent activity.
type Hub struct {
	mu       sync.Mutex
	lastID   int64
	recent   []Event // oldest-first, len <= capacity
	capacity int

	subs   map[int]chan Event
	nextID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		capacity: capacity,
		subs:     make(map[int]chan Event),
	}
}

// Publish records an event and delivers it to all current subscribers.
// data is marshaled to JSON; nil becomes an empty object.
func (h *Hub) Publish(eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{
		ID:   h.lastID,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.recent = append(h.recent, ev)
	if len(h.recent) > h.capacity {
		h.recent = h.recent[len(h.recent)-h.capacity:]
	}

	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// A lastID of 0 returns the whole replay buffer.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.recent))
	for _, ev := range h.recent {
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
