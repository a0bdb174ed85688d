package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/statekit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the bundled PostgreSQL migrations",
	Long: `Creates the tables of the bundled entity schema in the database at PG_CONN_URL.
Migrations already applied are recorded in PG_MIGRATIONS_TABLE and skipped.
With --dir the migrations are read from disk instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		cfg, err := loadConfig(envFile)
		if err != nil {
			return err
		}
		log := cfg.newLogger(os.Stderr)

		pool, err := pg.Connect(cmd.Context(), cfg.PG)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			cfg.PG.MigrationsPath = dir
			return pg.Migrate(cmd.Context(), pool, cfg.PG, log)
		}
		cfg.PG.MigrationsPath = "migrations"
		return pg.MigrateFS(cmd.Context(), pool, migrations, cfg.PG, log)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("dir", "", "Apply migrations from this directory instead of the bundled ones")
}
