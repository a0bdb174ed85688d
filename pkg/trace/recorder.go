package trace

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Recorder is an in-memory Sink that keeps every event in arrival order.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

// ByTrID returns the events of one invocation in emission order.
func (r *Recorder) ByTrID(id uuid.UUID) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	for _, e := range r.events {
		if e.TrID == id {
			out = append(out, e)
		}
	}
	return out
}

// Kinds returns the event kinds of one invocation in emission order.
func (r *Recorder) Kinds(id uuid.UUID) []Kind {
	events := r.ByTrID(id)
	kinds := make([]Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of the given kind were recorded for an invocation.
func (r *Recorder) Count(id uuid.UUID, kind Kind) int {
	n := 0
	for _, e := range r.ByTrID(id) {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
