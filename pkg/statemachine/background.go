package statemachine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the self-contained continuation of a background invocation.
// Dispatchers must deliver it unchanged; Data must be JSON-serializable.
type Envelope struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Target     string         `json:"target,omitempty"`
	// Index is the position of the transition among the process tree's
	// transitions sharing Action. Negative when unknown; Action and Target
	// must then identify a single transition.
	Index      int            `json:"index"`
	Process    string         `json:"process"`
	Field      string         `json:"field"`
	CallerID   string         `json:"caller_id,omitempty"`
	TrID       uuid.UUID      `json:"tr_id"`
	RootID     uuid.UUID      `json:"root_id"`
	ParentID   uuid.UUID      `json:"parent_id"`
	Data       map[string]any `json:"data,omitempty"`
}

// Dispatcher hands an envelope to another execution context, typically a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, env Envelope) error

// Dispatch calls f(ctx, env).
func (f DispatcherFunc) Dispatch(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Loader restores an entity from its identity.
type Loader interface {
	Load(ctx context.Context, entityType, entityID string) (Entity, error)
}

// CallerResolver restores a caller from its id.
type CallerResolver func(ctx context.Context, id string) (Caller, error)

// Resume runs the second phase of a background invocation: it rebuilds the
// invocation from env with its original ids and runs the in-progress state,
// side effects and completion without acquiring the lock, which is still held
// by the dispatching side.
//
// Errors returned before the transition starts (unknown process, missing
// loader, load or caller failures) leave the lock held so the envelope can be
// retried. Once the transition has started every error is final: side effect
// failures come back as *SideEffectError after the failure path ran, anything
// else is wrapped in ErrResumeFailed. Unlike PerformAction, side effect
// failures are always returned.
func (m *Machine) Resume(ctx context.Context, env Envelope) (uuid.UUID, error) {
	p, ok := m.Process(env.Process)
	if !ok {
		return env.TrID, fmt.Errorf("%w: %s", ErrProcessNotRegistered, env.Process)
	}
	if m.loader == nil {
		return env.TrID, ErrNoLoader
	}

	e, err := m.loader.Load(ctx, env.EntityType, env.EntityID)
	if err != nil {
		return env.TrID, fmt.Errorf("load entity %s/%s: %w", env.EntityType, env.EntityID, err)
	}

	var caller Caller
	if env.CallerID != "" {
		if m.callers != nil {
			caller, err = m.callers(ctx, env.CallerID)
			if err != nil {
				return env.TrID, fmt.Errorf("resolve caller %s: %w", env.CallerID, err)
			}
		} else {
			caller = StringCaller(env.CallerID)
		}
	}

	b, err := m.Bind(p, e)
	if err != nil {
		return env.TrID, err
	}

	t, err := p.resolve(env.Action, env.Target, env.Index)
	if err != nil {
		b.st.Unlock(ctx, env.TrID.String())
		if nt, ok := err.(*ErrNoTransition); ok {
			nt.Caller = env.CallerID
		}
		return env.TrID, err
	}

	inv := &Invocation{
		ID:         env.TrID,
		RootID:     env.RootID,
		ParentID:   env.ParentID,
		Caller:     caller,
		Data:       env.Data,
		Process:    p.name,
		Action:     env.Action,
		Background: true,
		Resumed:    true,
		bound:      b,
	}

	id, err := t.ChangeState(ctx, b.st, inv)
	if err != nil && !IsSideEffectError(err) {
		return id, fmt.Errorf("%w: %w", ErrResumeFailed, err)
	}
	return id, err
}
