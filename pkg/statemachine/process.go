package statemachine

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Process is an immutable, named group of transitions and nested processes
// governing one state field. Nested processes evaluate against the state field
// of the process they are nested in.
type Process struct {
	name        string
	field       string
	transitions []*Transition
	nested      []*Process
	conditions  Conditions
	permissions Permissions

	actions map[string][]*Transition
}

// ProcessOption configures a Process.
type ProcessOption func(*Process)

// WithTransitions appends transitions in declaration order, which is the order
// they are offered in.
func WithTransitions(ts ...*Transition) ProcessOption {
	return func(p *Process) { p.transitions = append(p.transitions, ts...) }
}

// WithNestedProcesses appends sub-processes evaluated after the own transitions.
// They must govern the same state field.
func WithNestedProcesses(ps ...*Process) ProcessOption {
	return func(p *Process) { p.nested = append(p.nested, ps...) }
}

// WithProcessConditions gates every transition of the process, nested ones included.
func WithProcessConditions(fns ...Condition) ProcessOption {
	return func(p *Process) { p.conditions = append(p.conditions, fns...) }
}

// WithProcessPermissions gates every transition of the process, nested ones included.
func WithProcessPermissions(fns ...Permission) ProcessOption {
	return func(p *Process) { p.permissions = append(p.permissions, fns...) }
}

// NewProcess builds a process definition and its action registry.
func NewProcess(name, field string, opts ...ProcessOption) (*Process, error) {
	if name == "" || field == "" {
		return nil, ErrInvalidProcess
	}

	p := &Process{name: name, field: field}
	for _, opt := range opts {
		opt(p)
	}

	var errs []error
	for i, t := range p.transitions {
		if t == nil {
			errs = append(errs, fmt.Errorf("process '%s': transition %d: %w", name, i, ErrInvalidTransition))
			continue
		}
		if err := t.validate(); err != nil {
			errs = append(errs, fmt.Errorf("process '%s': transition %d: %w", name, i, err))
		}
	}
	for _, n := range p.nested {
		if n == nil {
			errs = append(errs, fmt.Errorf("process '%s': %w: nil nested process", name, ErrInvalidProcess))
			continue
		}
		if n.field != field {
			errs = append(errs, fmt.Errorf("process '%s': %w: nested process '%s' uses field '%s'",
				name, ErrInvalidProcess, n.name, n.field))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	p.actions = make(map[string][]*Transition)
	p.Walk(func(_ int, proc *Process) {
		for _, t := range proc.transitions {
			p.actions[t.action] = append(p.actions[t.action], t)
		}
	})

	return p, nil
}

// MustNewProcess is like NewProcess but panics on invalid definitions.
func MustNewProcess(name, field string, opts ...ProcessOption) *Process {
	p, err := NewProcess(name, field, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create process: %v", err))
	}
	return p
}

// Name returns the registry name of the process.
func (p *Process) Name() string { return p.name }

// Field returns the state-bearing field the process governs.
func (p *Process) Field() string { return p.field }

// Transitions returns the transitions declared on this process, nested ones excluded.
func (p *Process) Transitions() []*Transition { return slices.Clone(p.transitions) }

// Nested returns the directly nested processes.
func (p *Process) Nested() []*Process { return slices.Clone(p.nested) }

// Actions returns every action name declared in the process tree, sorted.
func (p *Process) Actions() []string {
	names := make([]string, 0, len(p.actions))
	for name := range p.actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Declares reports whether any transition in the tree uses the action name.
func (p *Process) Declares(action string) bool {
	_, ok := p.actions[action]
	return ok
}

// Walk visits the process tree depth-first, own node before nested ones.
func (p *Process) Walk(fn func(depth int, p *Process)) {
	p.walk(0, fn)
}

func (p *Process) walk(depth int, fn func(int, *Process)) {
	fn(depth, p)
	for _, n := range p.nested {
		n.walk(depth+1, fn)
	}
}

// IsValid evaluates the process-level permissions and conditions.
func (p *Process) IsValid(ctx context.Context, st *State, caller Caller) bool {
	return p.permissions.Execute(ctx, st, caller) && p.conditions.Execute(ctx, st)
}

// indexOf returns the position of t among the transitions of the tree sharing
// its action name, or -1 when t is not part of the tree.
func (p *Process) indexOf(t *Transition) int {
	return slices.Index(p.actions[t.action], t)
}

// resolve returns the exact transition an envelope was dispatched for. With a
// negative index the action and target must identify a single transition.
func (p *Process) resolve(action, target string, index int) (*Transition, error) {
	ts := p.actions[action]
	if index >= 0 {
		if index < len(ts) && ts[index].target == target {
			return ts[index], nil
		}
		return nil, &ErrNoTransition{Action: action}
	}

	var found *Transition
	count := 0
	for _, t := range ts {
		if t.target == target {
			found = t
			count++
		}
	}
	switch count {
	case 0:
		return nil, &ErrNoTransition{Action: action}
	case 1:
		return found, nil
	default:
		return nil, &ErrAmbiguousTransition{Action: action, Count: count}
	}
}
