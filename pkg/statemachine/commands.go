package statemachine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/trace"
)

// ErrCommandPanic wraps a panic recovered from a registered function.
var ErrCommandPanic = errors.New("command panicked")

// Condition is a pure predicate over the entity.
type Condition func(ctx context.Context, e Entity) bool

// Permission decides whether caller may act on the entity.
type Permission func(ctx context.Context, e Entity, caller Caller) bool

// Command is a side effect or callback. The invocation carries the causal ids,
// the caller and the shared data bag.
type Command func(ctx context.Context, e Entity, inv *Invocation) error

// FailureCommand runs on the failure path and receives the error that failed the transition.
type FailureCommand func(ctx context.Context, e Entity, inv *Invocation, cause error) error

type (
	Conditions         []Condition
	Permissions        []Permission
	SideEffects        []Command
	Callbacks          []Command
	FailureSideEffects []FailureCommand
	FailureCallbacks   []FailureCommand
)

// settler is the owner of a side effect pipeline: it settles the invocation
// once the pipeline has finished.
type settler interface {
	complete(ctx context.Context, st *State, inv *Invocation) error
	fail(ctx context.Context, st *State, inv *Invocation, cause error)
}

// Execute reports whether every condition holds. A panicking condition counts as false.
func (c Conditions) Execute(ctx context.Context, st *State) bool {
	for _, fn := range c {
		ok := false
		err := safeCall(func() error {
			ok = fn(ctx, st.entity)
			return nil
		})
		if err != nil {
			st.m.log.ErrorContext(ctx, "condition failed",
				logger.Event(funcName(fn)), logger.EntityKey(st.key), logger.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Execute reports whether caller holds every permission. Anonymous callers always pass.
func (p Permissions) Execute(ctx context.Context, st *State, caller Caller) bool {
	if caller == nil {
		return true
	}
	for _, fn := range p {
		ok := false
		err := safeCall(func() error {
			ok = fn(ctx, st.entity, caller)
			return nil
		})
		if err != nil {
			st.m.log.ErrorContext(ctx, "permission check failed",
				logger.Event(funcName(fn)), logger.EntityKey(st.key), logger.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Execute runs the side effects in order. The first error stops the pipeline,
// drives the owner's failure path and is returned as a *SideEffectError.
// When every side effect succeeds the owner's completion path runs instead.
func (s SideEffects) Execute(ctx context.Context, st *State, inv *Invocation, owner settler) error {
	for _, fn := range s {
		name := funcName(fn)
		st.m.emit(ctx, st, inv, trace.KindSideEffect, name)

		if err := safeCall(func() error { return fn(ctx, st.entity, inv) }); err != nil {
			seErr := &SideEffectError{TrID: inv.ID, Action: inv.Action, Command: name, Err: err}
			owner.fail(ctx, st, inv, seErr)
			return seErr
		}
	}
	return owner.complete(ctx, st, inv)
}

// Execute runs the callbacks in order. The first error stops the pipeline and is logged.
func (c Callbacks) Execute(ctx context.Context, st *State, inv *Invocation) {
	for _, fn := range c {
		name := funcName(fn)
		st.m.emit(ctx, st, inv, trace.KindCallback, name)

		if err := safeCall(func() error { return fn(ctx, st.entity, inv) }); err != nil {
			st.m.logCommandError(ctx, st, inv, "callback failed", name, err)
			return
		}
	}
}

// Execute runs the failure side effects in order. Errors stop the pipeline and are logged.
func (f FailureSideEffects) Execute(ctx context.Context, st *State, inv *Invocation, cause error) {
	runFailure(ctx, st, inv, cause, f, trace.KindFailureSideEffect, "failure side effect failed")
}

// Execute runs the failure callbacks in order. Errors stop the pipeline and are logged.
func (f FailureCallbacks) Execute(ctx context.Context, st *State, inv *Invocation, cause error) {
	runFailure(ctx, st, inv, cause, f, trace.KindFailureCallback, "failure callback failed")
}

func runFailure(ctx context.Context, st *State, inv *Invocation, cause error, fns []FailureCommand, kind trace.Kind, msg string) {
	for _, fn := range fns {
		name := funcName(fn)
		st.m.emit(ctx, st, inv, kind, name)

		if err := safeCall(func() error { return fn(ctx, st.entity, inv, cause) }); err != nil {
			st.m.logCommandError(ctx, st, inv, msg, name, err)
			return
		}
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCommandPanic, r)
		}
	}()
	return fn()
}

// funcName returns the short name of a registered function, e.g. "billing.chargeCard".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "<nil>"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "<unknown>"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
