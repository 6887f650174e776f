package main

import (
	"context"
	"fmt"

	"github.com/fundrequest/claim-service/internal/app"
	"github.com/fundrequest/claim-service/internal/store"
	"github.com/fundrequest/claim-service/pkg/rabbitmq"
	"github.com/spf13/cobra"
)

var flagStaleClaimsCmd = &cobra.Command{
	Use:   "flag-stale-claims",
	Short: "Flag pending request claims that were never paid out, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		pool, db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		claimService := newClaimService(cfg, store.NewGormRepository(db), &rabbitmq.FallbackPublisher{Logger: logger}, nil)
		flagged, err := app.NewJobs(claimService, cfg.StaleClaimAfter(), logger).RunFlagStaleClaims(ctx)
		if err != nil {
			return fmt.Errorf("flag stale claims: %w", err)
		}
		logger.Info("stale claim run complete", "component", "jobs", "flagged", flagged)
		return nil
	},
}
