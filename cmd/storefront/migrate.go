package main

import (
	"fmt"
	"storefront/internal/config"
	"storefront/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Apply the embedded schema (orders, order items, agents, conversations
and push subscriptions). Every statement is idempotent, so running it on an
up-to-date database is a no-op.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger()
	ctx := cmd.Context()

	db, err := database.NewPostgres(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("schema applied", "host", cfg.Database.Host, "database", cfg.Database.Database)
	return nil
}
