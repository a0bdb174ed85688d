// Package statekit is a finite state machine engine for entities whose state
// lives in a string field of a database row or document.
//
// Processes group transitions over one state field and may nest further
// processes with their own conditions and permissions. A transition checks its
// conditions and the caller's permissions, locks the state field, runs its side
// effects and writes the target state, or the failed state when a side effect
// fails. Callbacks run after the lock is released and a transition may chain
// into a next transition. Every step is recorded as a trace event.
//
// The packages are:
//
//   - pkg/statemachine: processes, transitions, actions, invocation ids and the engine
//   - pkg/procdef: YAML process definitions resolved against a named function registry
//   - pkg/entity: state field accessors over memory, PostgreSQL and MongoDB
//   - pkg/lock: expiring state locks in memory and Redis
//   - pkg/queue: background transitions dispatched as tasks and resumed by workers
//   - pkg/trace: trace event sinks for logs, Prometheus metrics and tests
//   - pkg/config, pkg/logger, pkg/redis, pkg/pg, pkg/mongo, pkg/httpserver: ambient infrastructure
//
// Basic usage:
//
//	store := entity.NewMemory()
//	m := statemachine.MustNew(
//		statemachine.WithAccessor(store),
//		statemachine.WithLocker(lock.NewMemory()),
//	)
//	m.Register(statemachine.MustNewProcess("document", "status",
//		statemachine.WithTransitions(
//			statemachine.NewTransition("publish", []string{"draft"}, "published"),
//		),
//	))
//
//	b, _ := m.BindByName("document", entity.NewRef("document", "42"))
//	trID, err := b.PerformAction(ctx, "publish", statemachine.WithCaller(user))
//
// The cmd/statekit command validates definition files, performs actions and
// runs the background worker.
package statekit
