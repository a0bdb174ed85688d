// Package statemachine executes finite-state-machine transitions over entities
// whose state lives in external storage.
//
// A Process is a named, immutable tree of Transitions and nested Processes
// governing one state field. Binding a process to an entity produces a
// BoundProcess that answers which actions are available and performs them.
//
// Performing an action:
//  1. resolves exactly one available Transition for the action name;
//  2. acquires an advisory lock on (entity type, entity id, field) without waiting;
//  3. writes the optional in-progress state;
//  4. runs the side effects in order;
//  5. on success writes the target state, unlocks, runs the callbacks and the
//     optional next transition;
//  6. on failure writes the optional failed state, runs the failure side effects,
//     unlocks and runs the failure callbacks.
//
// Every path that acquired the lock releases it. Callback and failure handler
// errors are logged and never fail the transition.
//
// # Collaborators
//
// The engine does not persist anything itself. A Machine is configured with an
// Accessor reading and writing the state field, a Locker providing expiring
// advisory locks and a trace.Sink receiving the event stream. See the entity,
// lock and trace packages for ready-made implementations.
//
// # Usage
//
//	m := statemachine.MustNew(
//	    statemachine.WithAccessor(store),
//	    statemachine.WithLocker(lock.NewMemory()),
//	)
//
//	invoice := statemachine.MustNewProcess("invoice", "status",
//	    statemachine.WithTransitions(
//	        statemachine.NewTransition("submit", []string{"draft"}, "submitted",
//	            statemachine.WithInProgressState("submitting"),
//	            statemachine.WithFailedState("failed"),
//	            statemachine.WithSideEffects(reserveNumber, renderPDF),
//	            statemachine.WithCallbacks(notifyOwner),
//	        ),
//	        statemachine.NewAction("refresh", []string{"draft", "submitted"},
//	            statemachine.WithSideEffects(recalculate),
//	        ),
//	    ),
//	)
//
//	b, _ := m.Bind(invoice, inv)
//	id, err := b.PerformAction(ctx, "submit", statemachine.WithCaller(user))
//
// # Causality
//
// Each invocation gets a tr_id. The running invocation travels in the context,
// so a side effect calling PerformAction on another process starts a child
// invocation: its parent_id is the caller's tr_id and both share the root_id.
// trace.BuildTree rebuilds the tree from the event log.
//
// # Errors
//
// Refusals are returned as errors matching ErrTransitionNotAllowed: ErrStateLocked,
// *ErrNoTransition and *ErrAmbiguousTransition. A side effect failure is a
// *SideEffectError. Nested invocations return it to their parent; a root
// invocation logs it and returns its tr_id with a nil error so fire-and-forget
// callers keep working. WithStrictErrors opts a root call into receiving it.
//
// # Background execution
//
// WithBackground splits a root invocation in two: the caller locks the state,
// writes the in-progress state and hands an Envelope to the Dispatcher. A worker
// later calls Machine.Resume with that envelope, which restores the entity and
// caller and runs the side effects under the lock still held from the first phase.
package statemachine
