// Package queue carries background transition invocations from the process
// that locked the entity to a worker that resumes them.
//
// The package is organised around two components:
//
//   - Enqueuer  implements statemachine.Dispatcher and stores each envelope as a Task
//   - Worker    claims pending tasks and hands their envelopes to a Resumer,
//     usually a *statemachine.Machine
//
// Components interact only through small repository interfaces. MemoryStorage
// serves tests and single-process setups; RedisStorage lets the dispatching
// side and the workers run in different processes.
//
// # Usage
//
//	storage := queue.NewRedisStorage(client)
//	enq, _ := queue.NewEnqueuer(storage)
//
//	m := statemachine.MustNew(
//	    statemachine.WithAccessor(store),
//	    statemachine.WithLocker(lock.NewRedis(client)),
//	    statemachine.WithLoader(store),
//	    statemachine.WithDispatcher(enq),
//	)
//
//	w, _ := queue.NewWorker(storage, m, queue.WithMaxConcurrentTasks(4))
//	g.Go(w.Run(ctx))
//
// # Failures
//
// A side effect failure is terminal: the engine has already run the failure
// path and released the lock, so the task goes straight to the dead letter
// queue. Refusals (unknown process or transition) are terminal as well. Any
// other error, such as the entity store being unreachable, is retried with
// backoff until MaxRetries is exhausted.
package queue
