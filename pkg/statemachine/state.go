package statemachine

import (
	"context"
	"sync"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// State binds an entity to its state-bearing field. It is created per operation
// and never persisted by the engine.
type State struct {
	m       *Machine
	entity  Entity
	field   string
	process string
	key     string

	mu     sync.RWMutex
	cached string
}

// NewState creates a state handle for the given entity field.
func (m *Machine) NewState(e Entity, field, process string) *State {
	return &State{
		m:       m,
		entity:  e,
		field:   field,
		process: process,
		key:     LockKey(e.EntityType(), e.EntityID(), field),
	}
}

// Entity returns the bound entity.
func (s *State) Entity() Entity { return s.entity }

// Field returns the name of the state-bearing field.
func (s *State) Field() string { return s.field }

// Process returns the name of the process the state was created for.
func (s *State) Process() string { return s.process }

// Key returns the lock key of the state field.
func (s *State) Key() string { return s.key }

// Current reads the field value from the entity and refreshes the cache.
func (s *State) Current(ctx context.Context) (string, error) {
	v, err := s.m.accessor.Get(ctx, s.entity, s.field)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.cached = v
	s.mu.Unlock()
	return v, nil
}

// Cached returns the value seen by the last Current or SetState call.
func (s *State) Cached() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

// SetState writes value to the entity field.
func (s *State) SetState(ctx context.Context, value string) error {
	if err := s.m.accessor.Set(ctx, s.entity, s.field, value); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = value
	s.mu.Unlock()
	return nil
}

// IsLocked reports whether the lock is held. A provider error counts as locked.
func (s *State) IsLocked(ctx context.Context) bool {
	held, err := s.m.locker.IsHeld(ctx, s.key)
	if err != nil {
		s.m.log.ErrorContext(ctx, "lock check failed, treating state as locked",
			logger.EntityKey(s.key), logger.Error(err))
		return true
	}
	return held
}

// Lock acquires the lock for owner without waiting. A provider error counts
// as not acquired.
func (s *State) Lock(ctx context.Context, owner string) bool {
	ok, err := s.m.locker.TryAcquire(ctx, s.key, owner, s.m.lockTTL)
	if err != nil {
		s.m.log.ErrorContext(ctx, "lock acquisition failed",
			logger.EntityKey(s.key), logger.Error(err))
		return false
	}
	return ok
}

// Unlock releases the lock if owner holds it. Release errors are logged; the
// lock expires on its own.
func (s *State) Unlock(ctx context.Context, owner string) {
	if err := s.m.locker.Release(ctx, s.key, owner); err != nil {
		s.m.log.ErrorContext(ctx, "lock release failed",
			logger.EntityKey(s.key), logger.Error(err))
	}
}
