package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/pgstore"
	"fintrack/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Bring the configured backend's schema up to date. The memory backend
has no schema and is left alone.`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("status", false, "Show the applied schema version without migrating (sqlite only)")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	logger = logger.WithComponent(log.ComponentStorage)

	switch cfg.DataBackend {
	case config.BackendSQLite:
		if !status {
			logger.Info("Running migrations", log.FieldBackend, cfg.DataBackend, "path", cfg.SQLiteDBPath)
			if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
				return err
			}
		}
		v, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema version %d (dirty=%t)\n", v, dirty)
	case config.BackendPostgres:
		if status {
			return fmt.Errorf("--status is only supported for the sqlite backend")
		}
		logger.Info("Running migrations", log.FieldBackend, cfg.DataBackend)
		if err := pgstore.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "postgres schema up to date")
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "backend %q has no schema to migrate\n", cfg.DataBackend)
	}
	return nil
}
