package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/database"
	pgdb "github.com/noah-isme/dispatch-api/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrate(database.MigrateUp),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  runMigrate(database.MigrateDown),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the applied state of every migration",
	RunE:  runMigrate(database.MigrateStatus),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func runMigrate(step func(ctx context.Context, db *sqlx.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, logr, err := bootstrap()
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		defer logr.Sync() //nolint:errcheck

		db, err := pgdb.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		if err := step(cmd.Context(), db); err != nil {
			return err
		}
		version, err := database.Version(cmd.Context(), db)
		if err != nil {
			return err
		}
		logr.Info("migrate finished", zap.String("command", cmd.Name()), zap.Int64("version", version))
		return nil
	}
}
