package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a process definition file",
	Long: `Parses the definition file, resolves every referenced condition, permission
and command, and prints the resulting process tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		return runValidate(cmd.OutOrStdout(), file)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(w io.Writer, file string) error {
	processes, err := loadProcesses(file, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	for _, p := range processes {
		printProcess(w, p)
	}
	fmt.Fprintf(w, "%s is valid\n", file)
	return nil
}

func printProcess(w io.Writer, root *statemachine.Process) {
	root.Walk(func(depth int, p *statemachine.Process) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(w, "%sprocess %s (field %s)\n", indent, p.Name(), p.Field())
		for _, t := range p.Transitions() {
			fmt.Fprintf(w, "%s  %s from [%s]", indent, t, strings.Join(t.Sources(), ", "))
			if s := t.InProgressState(); s != "" {
				fmt.Fprintf(w, " in_progress=%s", s)
			}
			if s := t.FailedState(); s != "" {
				fmt.Fprintf(w, " failed=%s", s)
			}
			if s := t.NextTransition(); s != "" {
				fmt.Fprintf(w, " next=%s", s)
			}
			fmt.Fprintln(w)
		}
	})
}
