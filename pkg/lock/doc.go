// Package lock provides advisory lock providers for the statemachine engine.
//
// Both providers implement statemachine.Locker: acquisition is non-blocking
// (set-if-absent with an expiry) and stores an owner token. Release only
// deletes a key that still carries the caller's token, so a holder whose lock
// expired cannot free a lock someone else acquired since. The engine uses the
// invocation id as the token, which lets the worker resuming a background
// invocation release the lock its dispatcher took.
//
//	locker := lock.NewMemory()                    // single process
//	locker := lock.NewRedis(client, lock.WithPrefix("app:lock:")) // shared
package lock
