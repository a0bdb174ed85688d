package statemachine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrStateLocked          = fmt.Errorf("%w: state is locked", ErrTransitionNotAllowed)

	ErrInvalidTransition    = errors.New("invalid transition: action name and at least one source state are required")
	ErrInvalidProcess       = errors.New("invalid process: name and state field are required")
	ErrDuplicateProcess     = errors.New("process already registered")
	ErrProcessNotRegistered = errors.New("process not registered")
	ErrNoAccessor           = errors.New("state accessor is required")
	ErrNoLocker             = errors.New("lock provider is required")
	ErrNoDispatcher         = errors.New("background execution requested but no dispatcher configured")
	ErrNoLoader             = errors.New("entity loader is required to resume background invocations")
	ErrNilEntity            = errors.New("entity cannot be nil")
	ErrResumeFailed         = errors.New("resumed invocation failed after it started")
)

// ErrNoTransition indicates no available transition matches the requested action.
type ErrNoTransition struct {
	Action string
	Caller string
	State  string
}

func (e *ErrNoTransition) Error() string {
	caller := e.Caller
	if caller == "" {
		caller = "<anonymous>"
	}
	return fmt.Sprintf("no transition with action name '%s' available from state '%s' for caller '%s'", e.Action, e.State, caller)
}

func (e *ErrNoTransition) Is(target error) bool {
	return target == ErrTransitionNotAllowed
}

// ErrAmbiguousTransition indicates more than one available transition shares the action name.
// It is a definition error: the transitions need distinguishing conditions or permissions.
type ErrAmbiguousTransition struct {
	Action string
	Count  int
}

func (e *ErrAmbiguousTransition) Error() string {
	return fmt.Sprintf("action '%s' is ambiguous: %d transitions available", e.Action, e.Count)
}

func (e *ErrAmbiguousTransition) Is(target error) bool {
	return target == ErrTransitionNotAllowed
}

// SideEffectError wraps the error returned by a side effect. By the time it reaches the
// caller the failure path (failed state, failure side effects, unlock, failure callbacks)
// has already run.
type SideEffectError struct {
	TrID    uuid.UUID
	Action  string
	Command string
	Err     error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("side effect %s of action '%s' failed (tr_id=%s): %v", e.Command, e.Action, e.TrID, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	return e.Err
}

// IsNotAllowedError reports whether the transition was refused before it started:
// locked state, no matching transition or an ambiguous action name.
func IsNotAllowedError(err error) bool {
	return errors.Is(err, ErrTransitionNotAllowed)
}

// IsStateLockedError reports whether the state was locked by another invocation.
func IsStateLockedError(err error) bool {
	return errors.Is(err, ErrStateLocked)
}

// IsNoTransitionError reports whether no transition matched the action.
func IsNoTransitionError(err error) bool {
	var e *ErrNoTransition
	return errors.As(err, &e)
}

// IsAmbiguousTransitionError reports whether several transitions matched the action.
func IsAmbiguousTransitionError(err error) bool {
	var e *ErrAmbiguousTransition
	return errors.As(err, &e)
}

// IsSideEffectError reports whether the transition started and then failed.
func IsSideEffectError(err error) bool {
	var e *SideEffectError
	return errors.As(err, &e)
}
