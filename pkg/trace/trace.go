package trace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a step of a transition invocation.
type Kind string

const (
	KindStart             Kind = "Start"
	KindLock              Kind = "Lock"
	KindSetState          Kind = "SetState"
	KindSideEffect        Kind = "SideEffect"
	KindCallback          Kind = "Callback"
	KindFailureSideEffect Kind = "FailureSideEffect"
	KindFailureCallback   Kind = "FailureCallback"
	KindUnlock            Kind = "Unlock"
	KindFail              Kind = "Fail"
	KindBackgroundMode    Kind = "BackgroundMode"
	KindNextTransition    Kind = "NextTransition"
)

// PayloadResumed marks the Start event of an invocation resumed by a background worker.
const PayloadResumed = "resumed"

// Event is a single record of the trace stream.
type Event struct {
	Time      time.Time `json:"time"`
	TrID      uuid.UUID `json:"tr_id"`
	RootID    uuid.UUID `json:"root_id"`
	ParentID  uuid.UUID `json:"parent_id"`
	Kind      Kind      `json:"kind"`
	Process   string    `json:"process,omitempty"`
	Action    string    `json:"action,omitempty"`
	EntityKey string    `json:"entity_key,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

// IsRoot reports whether the event belongs to the root invocation of its causal tree.
func (e Event) IsRoot() bool {
	return e.TrID == e.RootID
}

// Sink consumes trace events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Record(ctx context.Context, e Event) {
	f(ctx, e)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

type multiSink []Sink

func (m multiSink) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// Multi returns a sink that forwards every event to all non-nil sinks in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
