package main

import (
	"fmt"

	"github.com/fundrequest/claim-service/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the claim-service tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := store.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database migrated", "component", "migrate")
		return nil
	},
}
