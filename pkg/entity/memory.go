package entity

import (
	"context"
	"maps"
	"sync"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// Memory is an in-process entity store holding string fields per entity.
type Memory struct {
	mu   sync.RWMutex
	data map[Ref]map[string]string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[Ref]map[string]string)}
}

// Put creates or replaces an entity with the given fields.
func (m *Memory) Put(ref Ref, fields map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[ref] = maps.Clone(fields)
	if m.data[ref] == nil {
		m.data[ref] = make(map[string]string)
	}
}

// Fields returns a copy of every field of the entity.
func (m *Memory) Fields(ref Ref) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.data[ref]
	return maps.Clone(f), ok
}

func (m *Memory) Get(_ context.Context, e statemachine.Entity, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.data[RefOf(e)]
	if !ok {
		return "", ErrNotFound
	}
	return f[field], nil
}

func (m *Memory) Set(_ context.Context, e statemachine.Entity, field, value string) error {
	if field == "" {
		return ErrInvalidField
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.data[RefOf(e)]
	if !ok {
		return ErrNotFound
	}
	f[field] = value
	return nil
}

func (m *Memory) Load(_ context.Context, entityType, id string) (statemachine.Entity, error) {
	ref := NewRef(entityType, id)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.data[ref]; !ok {
		return nil, ErrNotFound
	}
	return ref, nil
}
