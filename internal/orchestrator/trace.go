package orchestrator

import (
	"sync"
	"time"
)

// EventType classifies an activity event.
type EventType string

const (
	EventStatus EventType = "status"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one entry in the recent-activity trace.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
	Type      EventType `json:"type"`
	State     State     `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Recorder keeps a bounded in-memory trace of processing activity for the
// ops endpoint. Old events are dropped once the buffer is full.
type Recorder struct {
	mu     sync.Mutex
	seq    int64
	events []Event
	limit  int
	now    func() time.Time
}

// NewRecorder creates a trace that retains at most limit events.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 256
	}
	return &Recorder{limit: limit, now: time.Now}
}

// Publish appends an event, assigning it the next sequence number.
func (r *Recorder) Publish(requestID string, typ EventType, state State, message string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ev := Event{
		Seq:       r.seq,
		Timestamp: r.now(),
		RequestID: requestID,
		Type:      typ,
		State:     state,
		Message:   message,
	}
	r.events = append(r.events, ev)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	return ev
}

// Since returns events with a sequence number greater than seq, oldest first.
func (r *Recorder) Since(seq int64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Latest returns the highest sequence number assigned so far.
func (r *Recorder) Latest() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
