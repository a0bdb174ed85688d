package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// target selects the entity, process and caller a command works on.
type target struct {
	EntityType string
	EntityID   string
	Process    string
	Caller     string
	State      map[string]string
}

func addTargetFlags(cmd *cobra.Command, t *target) {
	cmd.Flags().StringVar(&t.EntityType, "type", "", "Entity type")
	cmd.Flags().StringVar(&t.EntityID, "id", "", "Entity id")
	cmd.Flags().StringVarP(&t.Process, "process", "p", "", "Process name (default: every registered process)")
	cmd.Flags().StringVar(&t.Caller, "caller", "", "Caller id (empty runs as the system)")
	cmd.Flags().StringToStringVar(&t.State, "state", nil, "Seed fields of the entity in the memory store, e.g. status=draft")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")
}

func (t target) ref() entity.Ref {
	return entity.NewRef(t.EntityType, t.EntityID)
}

func (t target) caller() statemachine.Caller {
	if t.Caller == "" {
		return nil
	}
	return statemachine.StringCaller(t.Caller)
}

// seed stores the --state fields when the app runs on the memory store.
func (t target) seed(a *app) error {
	if len(t.State) == 0 {
		return nil
	}
	if a.memory == nil {
		return fmt.Errorf("--state is only supported with STATEKIT_STORE=%s", backendMemory)
	}
	a.memory.Put(t.ref(), t.State)
	return nil
}

// processes resolves the --process flag, or every registered process.
func (t target) processes(a *app) ([]string, error) {
	if t.Process == "" {
		return a.machine.Processes(), nil
	}
	if _, ok := a.machine.Process(t.Process); !ok {
		return nil, fmt.Errorf("%w: %s", statemachine.ErrProcessNotRegistered, t.Process)
	}
	return []string{t.Process}, nil
}

// printState writes every state field of the process trees as field=value.
func printState(ctx context.Context, w io.Writer, a *app, e statemachine.Entity, names []string) error {
	var fields []string
	for _, name := range names {
		p, _ := a.machine.Process(name)
		p.Walk(func(_ int, p *statemachine.Process) {
			if !slices.Contains(fields, p.Field()) {
				fields = append(fields, p.Field())
			}
		})
	}
	for _, field := range fields {
		value, err := a.store.Get(ctx, e, field)
		if err != nil {
			return fmt.Errorf("read %s: %w", field, err)
		}
		fmt.Fprintf(w, "%s=%s\n", field, value)
	}
	return nil
}
