package main

import (
	"os"

	"github.com/spf13/cobra"
)

// setup loads the configuration named by the persistent flags and wires the app.
func setup(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	file, _ := cmd.Flags().GetString("file")

	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, cfg.newLogger(os.Stderr), file)
}
