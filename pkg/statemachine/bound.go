package statemachine

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// BoundProcess is a process definition bound to one entity for the duration of an operation.
type BoundProcess struct {
	m  *Machine
	p  *Process
	st *State
}

// Bind binds a process to an entity.
func (m *Machine) Bind(p *Process, e Entity) (*BoundProcess, error) {
	if p == nil {
		return nil, ErrInvalidProcess
	}
	if e == nil {
		return nil, ErrNilEntity
	}
	return &BoundProcess{m: m, p: p, st: m.NewState(e, p.field, p.name)}, nil
}

// BindByName binds a registered process to an entity.
func (m *Machine) BindByName(name string, e Entity) (*BoundProcess, error) {
	p, ok := m.Process(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotRegistered, name)
	}
	return m.Bind(p, e)
}

// Process returns the bound definition.
func (b *BoundProcess) Process() *Process { return b.p }

// State returns the state handle of the bound entity.
func (b *BoundProcess) State() *State { return b.st }

// Entity returns the bound entity.
func (b *BoundProcess) Entity() Entity { return b.st.entity }

// IsValid evaluates the process-level gates for caller.
func (b *BoundProcess) IsValid(ctx context.Context, caller Caller) bool {
	return b.p.IsValid(ctx, b.st, caller)
}

// QueryOption filters an availability query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	action     string
	ignoreLock bool
}

// ForAction restricts the query to transitions with the given action name.
func ForAction(action string) QueryOption {
	return func(c *queryConfig) { c.action = action }
}

// IgnoreLock skips the process-level lock check. Transitions still refuse to
// be offered while the state is locked.
func IgnoreLock() QueryOption {
	return func(c *queryConfig) { c.ignoreLock = true }
}

// AvailableTransitions lazily yields the transitions caller may start from the
// current state: own transitions in declaration order, then nested processes
// depth-first. Nothing is yielded while the state is locked or when the process
// itself is not valid for caller.
func (b *BoundProcess) AvailableTransitions(ctx context.Context, caller Caller, opts ...QueryOption) iter.Seq[*Transition] {
	cfg := &queryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(yield func(*Transition) bool) {
		if !cfg.ignoreLock && b.st.IsLocked(ctx) {
			return
		}
		current, err := b.st.Current(ctx)
		if err != nil {
			b.m.log.ErrorContext(ctx, "failed to read current state",
				logger.Process(b.p.name), logger.EntityKey(b.st.key), logger.Error(err))
			return
		}
		b.available(ctx, b.p, current, caller, cfg, yield)
	}
}

func (b *BoundProcess) available(ctx context.Context, p *Process, current string, caller Caller, cfg *queryConfig, yield func(*Transition) bool) bool {
	if !p.IsValid(ctx, b.st, caller) {
		return true
	}
	for _, t := range p.transitions {
		if cfg.action != "" && t.action != cfg.action {
			continue
		}
		if !t.HasSource(current) || !t.IsValid(ctx, b.st, caller) {
			continue
		}
		if !yield(t) {
			return false
		}
	}
	for _, n := range p.nested {
		if !b.available(ctx, n, current, caller, cfg, yield) {
			return false
		}
	}
	return true
}

// AvailableActions returns the sorted, de-duplicated action names caller may perform now.
func (b *BoundProcess) AvailableActions(ctx context.Context, caller Caller, opts ...QueryOption) []string {
	names := make([]string, 0)
	for t := range b.AvailableTransitions(ctx, caller, opts...) {
		names = append(names, t.action)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// TransitionByAction resolves the single transition caller may start for action.
func (b *BoundProcess) TransitionByAction(ctx context.Context, action string, caller Caller) (*Transition, error) {
	var matches []*Transition
	for t := range b.AvailableTransitions(ctx, caller, ForAction(action), IgnoreLock()) {
		matches = append(matches, t)
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if b.st.IsLocked(ctx) {
			return nil, ErrStateLocked
		}
		return nil, &ErrNoTransition{Action: action, Caller: callerID(caller), State: b.st.Cached()}
	default:
		return nil, &ErrAmbiguousTransition{Action: action, Count: len(matches)}
	}
}

// PerformAction resolves action and runs it, returning the invocation id.
//
// Refusals (locked state, unknown or ambiguous action) are always returned.
// A side effect failure is returned by nested invocations; a root invocation
// logs it and returns its id with a nil error unless WithStrictErrors is set.
func (b *BoundProcess) PerformAction(ctx context.Context, action string, opts ...InvokeOption) (uuid.UUID, error) {
	inv := NewInvocation(ctx, action, opts...)
	inv.Process = b.p.name
	inv.bound = b

	t, err := b.TransitionByAction(ctx, action, inv.Caller)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := t.ChangeState(ctx, b.st, inv)
	if err != nil && inv.IsRoot() && !inv.Strict && IsSideEffectError(err) {
		b.m.log.ErrorContext(ctx, "transition failed",
			logger.TrID(inv.ID),
			logger.Process(inv.Process),
			logger.Action(action),
			logger.EntityKey(b.st.key),
			logger.Error(err),
		)
		return id, nil
	}
	return id, err
}
