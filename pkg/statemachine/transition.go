package statemachine

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

// Transition is an immutable rule moving an entity from one of its source states
// to the target state through a side effect pipeline. One definition is shared by
// every entity and invocation; per-call data travels in the Invocation.
type Transition struct {
	action     string
	sources    []string
	target     string
	inProgress string
	failed     string
	next       string
	isAction   bool

	sideEffects        SideEffects
	callbacks          Callbacks
	failureSideEffects FailureSideEffects
	failureCallbacks   FailureCallbacks
	permissions        Permissions
	conditions         Conditions
}

// TransitionOption configures a Transition or an Action.
type TransitionOption func(*Transition)

// NewTransition defines a transition. Definitions are validated when they are
// added to a process.
func NewTransition(action string, sources []string, target string, opts ...TransitionOption) *Transition {
	t := &Transition{
		action:  action,
		sources: slices.Clone(sources),
		target:  target,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewAction defines a transition that runs side effects without changing state.
// It still locks the state field and may declare a failed state.
func NewAction(action string, sources []string, opts ...TransitionOption) *Transition {
	t := NewTransition(action, sources, "", opts...)
	t.isAction = true
	t.next = ""
	return t
}

// WithInProgressState sets the state written right after the lock is acquired.
func WithInProgressState(state string) TransitionOption {
	return func(t *Transition) { t.inProgress = state }
}

// WithFailedState sets the state written when a side effect fails.
func WithFailedState(state string) TransitionOption {
	return func(t *Transition) { t.failed = state }
}

// WithSideEffects appends commands run in order before the target state is
// written. The first error stops the pipeline and starts the failure path.
func WithSideEffects(fns ...Command) TransitionOption {
	return func(t *Transition) { t.sideEffects = append(t.sideEffects, fns...) }
}

// WithCallbacks appends commands run after the lock is released. Their errors
// are logged and never change the outcome.
func WithCallbacks(fns ...Command) TransitionOption {
	return func(t *Transition) { t.callbacks = append(t.callbacks, fns...) }
}

// WithFailureSideEffects appends commands run after the failed state is
// written, while the lock is still held.
func WithFailureSideEffects(fns ...FailureCommand) TransitionOption {
	return func(t *Transition) { t.failureSideEffects = append(t.failureSideEffects, fns...) }
}

// WithFailureCallbacks appends commands run after a failure released the lock.
func WithFailureCallbacks(fns ...FailureCommand) TransitionOption {
	return func(t *Transition) { t.failureCallbacks = append(t.failureCallbacks, fns...) }
}

// WithPermissions appends caller checks. All must pass for the transition to be available.
func WithPermissions(fns ...Permission) TransitionOption {
	return func(t *Transition) { t.permissions = append(t.permissions, fns...) }
}

// WithConditions appends state checks. All must hold for the transition to be available.
func WithConditions(fns ...Condition) TransitionOption {
	return func(t *Transition) { t.conditions = append(t.conditions, fns...) }
}

// WithNextTransition chains the action to run once this transition completes.
// Actions ignore it.
func WithNextTransition(action string) TransitionOption {
	return func(t *Transition) { t.next = action }
}

// Action returns the action name the transition is performed by.
func (t *Transition) Action() string { return t.action }

// Sources returns a copy of the states the transition may start from.
func (t *Transition) Sources() []string { return slices.Clone(t.sources) }

// Target returns the state written on success, empty for actions.
func (t *Transition) Target() string { return t.target }

// InProgressState returns the state written while side effects run, if any.
func (t *Transition) InProgressState() string { return t.inProgress }

// FailedState returns the state written when a side effect fails, if any.
func (t *Transition) FailedState() string { return t.failed }

// NextTransition returns the action chained after completion, if any.
func (t *Transition) NextTransition() string { return t.next }

// IsAction reports whether the transition leaves the state unchanged.
func (t *Transition) IsAction() bool { return t.isAction }

// HasSource reports whether state is one of the source states.
func (t *Transition) HasSource(state string) bool {
	return slices.Contains(t.sources, state)
}

// String describes the transition for traces and logs.
func (t *Transition) String() string {
	if t.isAction {
		return "Action: " + t.action
	}
	return fmt.Sprintf("Transition: %s to %s", t.action, t.target)
}

func (t *Transition) validate() error {
	if t.action == "" || len(t.sources) == 0 {
		return ErrInvalidTransition
	}
	if !t.isAction && t.target == "" {
		return fmt.Errorf("%w: transition '%s' has no target state", ErrInvalidTransition, t.action)
	}
	return nil
}

// IsValid reports whether the transition may start: the state is not locked,
// caller holds every permission and every condition holds.
func (t *Transition) IsValid(ctx context.Context, st *State, caller Caller) bool {
	return !st.IsLocked(ctx) &&
		t.permissions.Execute(ctx, st, caller) &&
		t.conditions.Execute(ctx, st)
}

// ChangeState runs the transition for inv and returns its id.
//
// The lock is acquired without waiting; if the state is already locked the call
// fails with ErrStateLocked and nothing is changed. Resumed background invocations
// skip acquisition, the lock is still held from the dispatching side. A side effect
// failure is returned as a *SideEffectError after the failure path has run. So is
// a failed in-progress write of a resumed invocation, whose lock is only released
// by the failure path.
func (t *Transition) ChangeState(ctx context.Context, st *State, inv *Invocation) (uuid.UUID, error) {
	m := st.m
	if inv.Action == "" {
		inv.Action = t.action
	}

	start := t.String()
	if inv.Resumed {
		start = trace.PayloadResumed
	}
	m.emit(ctx, st, inv, trace.KindStart, start)

	if !inv.Resumed {
		if st.IsLocked(ctx) || !st.Lock(ctx, inv.lockOwner()) {
			return inv.ID, ErrStateLocked
		}
		m.emit(ctx, st, inv, trace.KindLock, "")
	}

	if inv.Data == nil {
		inv.Data = make(map[string]any)
	}
	ctx = WithInvocation(ctx, inv)

	if t.inProgress != "" {
		if err := st.SetState(ctx, t.inProgress); err != nil {
			if inv.Resumed {
				seErr := &SideEffectError{TrID: inv.ID, Action: t.action, Command: "set_in_progress", Err: err}
				t.fail(ctx, st, inv, seErr)
				return inv.ID, seErr
			}
			st.Unlock(ctx, inv.lockOwner())
			m.emit(ctx, st, inv, trace.KindUnlock, "")
			return inv.ID, fmt.Errorf("set in-progress state: %w", err)
		}
		m.emit(ctx, st, inv, trace.KindSetState, t.inProgress)
	}

	if inv.Background && inv.IsRoot() && !inv.Resumed {
		return inv.ID, t.dispatch(ctx, st, inv)
	}

	if err := t.sideEffects.Execute(ctx, st, inv, t); err != nil {
		return inv.ID, err
	}
	return inv.ID, nil
}

func (t *Transition) dispatch(ctx context.Context, st *State, inv *Invocation) error {
	m := st.m
	env := Envelope{
		EntityType: st.entity.EntityType(),
		EntityID:   st.entity.EntityID(),
		Action:     t.action,
		Target:     t.target,
		Index:      -1,
		Process:    inv.Process,
		Field:      st.field,
		CallerID:   callerID(inv.Caller),
		TrID:       inv.ID,
		RootID:     inv.RootID,
		ParentID:   inv.ParentID,
		Data:       inv.Data,
	}
	if p := inv.process(m); p != nil {
		env.Index = p.indexOf(t)
	}

	m.emit(ctx, st, inv, trace.KindBackgroundMode, "")

	err := ErrNoDispatcher
	if m.dispatcher != nil {
		err = m.dispatcher.Dispatch(ctx, env)
	}
	if err != nil {
		err = fmt.Errorf("dispatch background invocation: %w", err)
		t.fail(ctx, st, inv, err)
		return err
	}
	return nil
}

func (t *Transition) complete(ctx context.Context, st *State, inv *Invocation) error {
	m := st.m

	if !t.isAction {
		if err := st.SetState(ctx, t.target); err != nil {
			seErr := &SideEffectError{TrID: inv.ID, Action: t.action, Command: "set_state", Err: err}
			t.fail(ctx, st, inv, seErr)
			return seErr
		}
		m.emit(ctx, st, inv, trace.KindSetState, t.target)
	}

	st.Unlock(ctx, inv.lockOwner())
	m.emit(ctx, st, inv, trace.KindUnlock, "")

	t.callbacks.Execute(ctx, st, inv)

	if t.isAction {
		return nil
	}
	return t.runNext(ctx, st, inv)
}

// runNext starts the chained transition on the same bound process. Zero matches
// end the chain; several matches are logged and end it as well, and so does a
// next transition that finds the state locked by someone else.
func (t *Transition) runNext(ctx context.Context, st *State, inv *Invocation) error {
	if t.next == "" || inv.bound == nil {
		return nil
	}

	var matches []*Transition
	for tr := range inv.bound.AvailableTransitions(ctx, inv.Caller, ForAction(t.next)) {
		matches = append(matches, tr)
	}

	switch len(matches) {
	case 0:
		return nil
	case 1:
	default:
		st.m.log.ErrorContext(ctx, "next transition is ambiguous, chain stopped",
			logger.TrID(inv.ID),
			logger.Action(t.next),
			logger.Error(&ErrAmbiguousTransition{Action: t.next, Count: len(matches)}),
		)
		return nil
	}

	st.m.emit(ctx, st, inv, trace.KindNextTransition, t.next)

	next := inv.child(t.next)
	_, err := matches[0].ChangeState(ctx, st, next)
	if IsStateLockedError(err) {
		st.m.log.WarnContext(ctx, "next transition lost the lock, chain stopped",
			logger.TrID(next.ID),
			logger.ParentID(inv.ID),
			logger.Action(t.next),
			logger.EntityKey(st.key),
		)
		return nil
	}
	return err
}

func (t *Transition) fail(ctx context.Context, st *State, inv *Invocation, cause error) {
	m := st.m
	m.emit(ctx, st, inv, trace.KindFail, cause.Error())

	if t.failed != "" {
		if err := st.SetState(ctx, t.failed); err != nil {
			m.log.ErrorContext(ctx, "failed to write failed state",
				logger.TrID(inv.ID), logger.EntityKey(st.key), logger.State(t.failed), logger.Error(err))
		} else {
			m.emit(ctx, st, inv, trace.KindSetState, t.failed)
		}
	}

	t.failureSideEffects.Execute(ctx, st, inv, cause)

	st.Unlock(ctx, inv.lockOwner())
	m.emit(ctx, st, inv, trace.KindUnlock, "")

	t.failureCallbacks.Execute(ctx, st, inv, cause)
}
