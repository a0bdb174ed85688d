package statemachine

import (
	"context"
	"time"
)

// Entity is the object whose lifecycle a process governs.
type Entity interface {
	EntityType() string
	EntityID() string
}

// Accessor reads and writes the state-bearing field of an entity.
// How and when writes are flushed is up to the implementation.
type Accessor interface {
	Get(ctx context.Context, e Entity, field string) (string, error)
	Set(ctx context.Context, e Entity, field, value string) error
}

// Locker is an advisory, non-blocking lock provider with expiring keys.
// Each lock carries an owner token; the engine passes the invocation id.
type Locker interface {
	// TryAcquire sets the key to owner if absent and reports whether it did.
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release deletes the key if owner still holds it, and is a no-op otherwise.
	Release(ctx context.Context, key, owner string) error
	// IsHeld reports whether anyone holds the key.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Caller identifies who performs an action. A nil Caller is anonymous
// (system execution) and bypasses permission checks.
type Caller interface {
	ID() string
}

// StringCaller is a Caller identified by a plain string.
type StringCaller string

// ID returns the string itself.
func (c StringCaller) ID() string {
	return string(c)
}

// LockKey derives the lock key of an entity state field.
func LockKey(entityType, entityID, field string) string {
	return "state:" + entityType + ":" + entityID + ":" + field
}

func callerID(c Caller) string {
	if c == nil {
		return ""
	}
	return c.ID()
}
