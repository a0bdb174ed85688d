package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "statekit",
	Short: "statekit runs state machine processes declared in YAML",
	Long: `statekit loads process definitions, lists the actions available to a caller,
performs transitions against a configured entity store and runs the worker
that completes background transitions.

Backends and connections are configured through the environment (STATEKIT_*,
REDIS_*, PG_*, MONGODB_*, QUEUE_*, LOCK_*, HTTP_*); a .env file is read if present.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it until the
// command returns or the process receives SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", "processes.yaml", "Process definition file")
	rootCmd.PersistentFlags().String("env-file", "", "Additional .env file to load before reading the environment")
}
