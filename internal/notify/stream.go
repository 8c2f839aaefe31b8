package notify

import (
	"context"
	"sync"
	"time"
)

// Action describes what happened to a content item.
type Action string

const (
	ActionApplied      Action = "applied"
	ActionEvicted      Action = "evicted"
	ActionDeadLettered Action = "deadlettered"
)

// Event is one entry on the change-notification stream.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	ContentID string    `json:"content_id"`
	Version   int64     `json:"version"`
	Action    Action    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// EventSink receives every published event (for alerting, persistence).
type EventSink interface {
	Append(Event)
}

// Hub stores recent events and wakes waiters when new events arrive.
// Publishing never blocks on consumers: slow readers observe a gap in
// sequence numbers instead of stalling the engine.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	sinks    []EventSink
}

// NewHub constructs a bounded in-memory event fan-out buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink wires an additional sink that receives every published event.
func (h *Hub) AddSink(sink EventSink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish appends a new event to the hub.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	sinks := append([]EventSink(nil), h.sinks...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
}

// Fetch returns all events with sequence greater than since. When wait is
// true, Fetch blocks until at least one event is available or the context
// ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, nil
		}
		if ctx != nil && ctx.Err() != nil {
			return nil, since, ctx.Err()
		}
		h.cond.Wait()
	}
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	next := since
	var events []Event
	for _, evt := range h.buffer {
		if evt.Sequence <= since {
			continue
		}
		events = append(events, evt)
		next = evt.Sequence
		if len(events) == limit {
			break
		}
	}
	return events, next
}
