package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

type performRequest struct {
	target
	Action     string
	Data       map[string]string
	Background bool
}

var performReq performRequest

var performCmd = &cobra.Command{
	Use:   "perform",
	Short: "Perform an action on an entity",
	Long: `Performs the action on the entity and prints the transition id and the
resulting state. With --background and the memory queue the queued second
phase runs in-process before the state is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context()))

		return runPerform(cmd.Context(), cmd.OutOrStdout(), a, performReq)
	},
}

func init() {
	rootCmd.AddCommand(performCmd)
	addTargetFlags(performCmd, &performReq.target)
	performCmd.Flags().StringVarP(&performReq.Action, "action", "a", "", "Action to perform")
	performCmd.Flags().StringToStringVarP(&performReq.Data, "data", "d", nil, "Invocation data, e.g. reason=late")
	performCmd.Flags().BoolVar(&performReq.Background, "background", false, "Run the transition through the task queue")
	_ = performCmd.MarkFlagRequired("action")
}

func runPerform(ctx context.Context, w io.Writer, a *app, req performRequest) error {
	if err := req.seed(a); err != nil {
		return err
	}
	name, err := req.declaringProcess(a)
	if err != nil {
		return err
	}
	b, err := a.machine.BindByName(name, req.ref())
	if err != nil {
		return err
	}

	var opts []statemachine.InvokeOption
	if c := req.caller(); c != nil {
		opts = append(opts, statemachine.WithCaller(c))
	}
	if len(req.Data) > 0 {
		data := make(map[string]any, len(req.Data))
		for k, v := range req.Data {
			data[k] = v
		}
		opts = append(opts, statemachine.WithData(data))
	}
	if req.Background {
		opts = append(opts, statemachine.WithBackground())
	}

	id, err := b.PerformAction(ctx, req.Action, opts...)
	if err != nil {
		return fmt.Errorf("perform %s on %s: %w", req.Action, req.ref(), err)
	}
	fmt.Fprintf(w, "tr_id=%s\n", id)

	if req.Background && a.cfg.Queue == backendMemory {
		worker, err := a.newWorker()
		if err != nil {
			return err
		}
		n, err := worker.Drain(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "processed %d queued task(s)\n", n)
	}

	return printState(ctx, w, a, req.ref(), []string{name})
}

// declaringProcess returns --process, or the first registered process that
// declares the action.
func (r performRequest) declaringProcess(a *app) (string, error) {
	names, err := r.processes(a)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if p, _ := a.machine.Process(name); p.Declares(r.Action) {
			return name, nil
		}
	}
	return "", &statemachine.ErrNoTransition{Action: r.Action, Caller: r.Caller}
}
