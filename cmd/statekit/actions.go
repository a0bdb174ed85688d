package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var actionsTarget target

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the actions a caller can perform on an entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(cmd.Context()))

		return runActions(cmd.Context(), cmd.OutOrStdout(), a, actionsTarget)
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
	addTargetFlags(actionsCmd, &actionsTarget)
}

func runActions(ctx context.Context, w io.Writer, a *app, t target) error {
	if err := t.seed(a); err != nil {
		return err
	}
	names, err := t.processes(a)
	if err != nil {
		return err
	}

	for _, name := range names {
		b, err := a.machine.BindByName(name, t.ref())
		if err != nil {
			return err
		}
		actions := b.AvailableActions(ctx, t.caller())
		if len(actions) == 0 {
			fmt.Fprintf(w, "%s: -\n", name)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", name, strings.Join(actions, ", "))
	}
	return nil
}
