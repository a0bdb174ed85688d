package procdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// KindAction marks a transition that never changes the state.
const KindAction = "action"

var ErrEmptyDocument = errors.New("definition declares no processes")

// Document is the root of a definition file.
type Document struct {
	Processes []ProcessDef `yaml:"processes"`
}

// ProcessDef declares a process and its nested processes.
type ProcessDef struct {
	Name        string          `yaml:"name"`
	Field       string          `yaml:"field"`
	Conditions  []string        `yaml:"conditions,omitempty"`
	Permissions []string        `yaml:"permissions,omitempty"`
	Transitions []TransitionDef `yaml:"transitions,omitempty"`
	Nested      []ProcessDef    `yaml:"nested,omitempty"`
}

// TransitionDef declares a transition or, with kind "action", an action.
type TransitionDef struct {
	Action             string   `yaml:"action"`
	Kind               string   `yaml:"kind,omitempty"`
	Sources            []string `yaml:"sources"`
	Target             string   `yaml:"target,omitempty"`
	InProgress         string   `yaml:"in_progress,omitempty"`
	Failed             string   `yaml:"failed,omitempty"`
	Next               string   `yaml:"next,omitempty"`
	Conditions         []string `yaml:"conditions,omitempty"`
	Permissions        []string `yaml:"permissions,omitempty"`
	SideEffects        []string `yaml:"side_effects,omitempty"`
	Callbacks          []string `yaml:"callbacks,omitempty"`
	FailureSideEffects []string `yaml:"failure_side_effects,omitempty"`
	FailureCallbacks   []string `yaml:"failure_callbacks,omitempty"`
}

// Decode reads a definition document. Unknown keys are rejected.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDocument
		}
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if len(doc.Processes) == 0 {
		return nil, ErrEmptyDocument
	}
	return &doc, nil
}

// Parse decodes data and builds its processes against reg.
func Parse(data []byte, reg *Registry) ([]*statemachine.Process, error) {
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return doc.Build(reg)
}

// LoadFile parses the definition file at path.
func LoadFile(path string, reg *Registry) ([]*statemachine.Process, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	ps, err := Parse(data, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// Build resolves every function name through reg. All problems are reported
// together, each prefixed with its location in the document.
func (d *Document) Build(reg *Registry) ([]*statemachine.Process, error) {
	if reg == nil {
		reg = NewRegistry()
	}

	b := &builder{reg: reg}
	out := make([]*statemachine.Process, 0, len(d.Processes))
	for i, pd := range d.Processes {
		if p := b.process(fmt.Sprintf("processes[%d]", i), pd); p != nil {
			out = append(out, p)
		}
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return out, nil
}

type builder struct {
	reg  *Registry
	errs []error
}

func (b *builder) errorf(path, format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(path+": "+format, args...))
}

func (b *builder) process(path string, pd ProcessDef) *statemachine.Process {
	if strings.TrimSpace(pd.Name) == "" {
		b.errorf(path, "name is required")
	}
	if strings.TrimSpace(pd.Field) == "" {
		b.errorf(path, "field is required")
	}

	opts := []statemachine.ProcessOption{
		statemachine.WithProcessConditions(resolve(b, path, pd.Conditions, b.reg.Condition)...),
		statemachine.WithProcessPermissions(resolve(b, path, pd.Permissions, b.reg.Permission)...),
	}

	ts := make([]*statemachine.Transition, 0, len(pd.Transitions))
	for i, td := range pd.Transitions {
		if t := b.transition(fmt.Sprintf("%s.transitions[%d]", path, i), td); t != nil {
			ts = append(ts, t)
		}
	}
	opts = append(opts, statemachine.WithTransitions(ts...))

	nested := make([]*statemachine.Process, 0, len(pd.Nested))
	for i, nd := range pd.Nested {
		if nd.Field == "" {
			nd.Field = pd.Field
		}
		if p := b.process(fmt.Sprintf("%s.nested[%d]", path, i), nd); p != nil {
			nested = append(nested, p)
		}
	}
	opts = append(opts, statemachine.WithNestedProcesses(nested...))

	if len(b.errs) > 0 {
		return nil
	}

	p, err := statemachine.NewProcess(pd.Name, pd.Field, opts...)
	if err != nil {
		b.errorf(path, "%w", err)
		return nil
	}
	return p
}

func (b *builder) transition(path string, td TransitionDef) *statemachine.Transition {
	before := len(b.errs)

	if td.Action == "" {
		b.errorf(path, "action is required")
	}
	if len(td.Sources) == 0 {
		b.errorf(path, "sources are required")
	}

	opts := []statemachine.TransitionOption{
		statemachine.WithConditions(resolve(b, path, td.Conditions, b.reg.Condition)...),
		statemachine.WithPermissions(resolve(b, path, td.Permissions, b.reg.Permission)...),
		statemachine.WithSideEffects(resolve(b, path, td.SideEffects, b.reg.Command)...),
		statemachine.WithCallbacks(resolve(b, path, td.Callbacks, b.reg.Command)...),
		statemachine.WithFailureSideEffects(resolve(b, path, td.FailureSideEffects, b.reg.FailureCommand)...),
		statemachine.WithFailureCallbacks(resolve(b, path, td.FailureCallbacks, b.reg.FailureCommand)...),
	}
	if td.InProgress != "" {
		opts = append(opts, statemachine.WithInProgressState(td.InProgress))
	}
	if td.Failed != "" {
		opts = append(opts, statemachine.WithFailedState(td.Failed))
	}

	switch td.Kind {
	case "", "transition":
		if td.Target == "" {
			b.errorf(path, "target is required")
		}
		if td.Next != "" {
			opts = append(opts, statemachine.WithNextTransition(td.Next))
		}
	case KindAction:
		if td.Target != "" {
			b.errorf(path, "an action cannot declare a target")
		}
		if td.Next != "" {
			b.errorf(path, "an action cannot declare a next transition")
		}
	default:
		b.errorf(path, "unknown kind %q", td.Kind)
	}

	if len(b.errs) > before {
		return nil
	}
	if td.Kind == KindAction {
		return statemachine.NewAction(td.Action, td.Sources, opts...)
	}
	return statemachine.NewTransition(td.Action, td.Sources, td.Target, opts...)
}

func resolve[F any](b *builder, path string, names []string, get func(string) (F, error)) []F {
	out := make([]F, 0, len(names))
	for _, name := range names {
		fn, err := get(name)
		if err != nil {
			b.errorf(path, "%w", err)
			continue
		}
		out = append(out, fn)
	}
	return out
}
