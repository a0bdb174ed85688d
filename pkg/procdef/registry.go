package procdef

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

var (
	ErrEmptyName     = errors.New("function name cannot be empty")
	ErrNilFunc       = errors.New("function cannot be nil")
	ErrDuplicateName = errors.New("function already registered")
	ErrUnknownName   = errors.New("function not registered")
)

// Registry maps the names used in definition files to Go functions.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	conditions  map[string]statemachine.Condition
	permissions map[string]statemachine.Permission
	commands    map[string]statemachine.Command
	failures    map[string]statemachine.FailureCommand
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conditions:  make(map[string]statemachine.Condition),
		permissions: make(map[string]statemachine.Permission),
		commands:    make(map[string]statemachine.Command),
		failures:    make(map[string]statemachine.FailureCommand),
	}
}

func register[F any](r *Registry, m map[string]F, kind, name string, fn F, isNil bool) error {
	if name == "" {
		return fmt.Errorf("%s: %w", kind, ErrEmptyName)
	}
	if isNil {
		return fmt.Errorf("%s %q: %w", kind, name, ErrNilFunc)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := m[name]; ok {
		return fmt.Errorf("%s %q: %w", kind, name, ErrDuplicateName)
	}
	m[name] = fn
	return nil
}

func lookup[F any](r *Registry, m map[string]F, kind, name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%s %q: %w", kind, name, ErrUnknownName)
	}
	return fn, nil
}

// RegisterCondition adds a named condition.
func (r *Registry) RegisterCondition(name string, fn statemachine.Condition) error {
	return register(r, r.conditions, "condition", name, fn, fn == nil)
}

// RegisterPermission adds a named permission.
func (r *Registry) RegisterPermission(name string, fn statemachine.Permission) error {
	return register(r, r.permissions, "permission", name, fn, fn == nil)
}

// RegisterCommand adds a named side effect or callback.
func (r *Registry) RegisterCommand(name string, fn statemachine.Command) error {
	return register(r, r.commands, "command", name, fn, fn == nil)
}

// RegisterFailureCommand adds a named failure side effect or failure callback.
func (r *Registry) RegisterFailureCommand(name string, fn statemachine.FailureCommand) error {
	return register(r, r.failures, "failure command", name, fn, fn == nil)
}

// Condition returns the named condition.
func (r *Registry) Condition(name string) (statemachine.Condition, error) {
	return lookup(r, r.conditions, "condition", name)
}

// Permission returns the named permission.
func (r *Registry) Permission(name string) (statemachine.Permission, error) {
	return lookup(r, r.permissions, "permission", name)
}

// Command returns the named command.
func (r *Registry) Command(name string) (statemachine.Command, error) {
	return lookup(r, r.commands, "command", name)
}

// FailureCommand returns the named failure command.
func (r *Registry) FailureCommand(name string) (statemachine.FailureCommand, error) {
	return lookup(r, r.failures, "failure command", name)
}

// Names lists every registered name per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string][]string{
		"conditions":       sortedKeys(r.conditions),
		"permissions":      sortedKeys(r.permissions),
		"commands":         sortedKeys(r.commands),
		"failure_commands": sortedKeys(r.failures),
	}
}

func sortedKeys[F any](m map[string]F) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
