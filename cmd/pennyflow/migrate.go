package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pennyflow/pennyflow/internal/config"
	"github.com/pennyflow/pennyflow/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Migrations are embedded and versioned; running against an up-to-date
database is a no-op.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dbPath := cfg.DBPath
	if override := viper.GetString("database.path"); override != "" {
		dbPath = config.ExpandPath(override)
	}

	slog.Info("running database migration", "database", dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrated", "schema_version", storage.ExpectedSchemaVersion)
	return nil
}
