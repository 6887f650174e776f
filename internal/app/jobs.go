/**
 * @description
 * Scheduled job implementations for the claim-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

const staleClaimJobTimeout = 2 * time.Minute

// StaleClaimFlagger is implemented by ClaimService.
type StaleClaimFlagger interface {
	FlagStaleRequestClaims(ctx context.Context, olderThan time.Time) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	flagger    StaleClaimFlagger
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewJobs creates a new Jobs runner. Request claims still PENDING after staleAfter are
// flagged for manual review.
func NewJobs(flagger StaleClaimFlagger, staleAfter time.Duration, logger *slog.Logger) *Jobs {
	return &Jobs{
		flagger:    flagger,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// FlagStaleClaims is the job that flags request claims whose payout never got confirmed.
func (j *Jobs) FlagStaleClaims() {
	ctx, cancel := context.WithTimeout(context.Background(), staleClaimJobTimeout)
	defer cancel()

	if _, err := j.RunFlagStaleClaims(ctx); err != nil {
		j.logger.Error("stale claim job failed", "error", err)
	}
}

// RunFlagStaleClaims runs the stale claim job once and returns the number of flagged rows.
func (j *Jobs) RunFlagStaleClaims(ctx context.Context) (int, error) {
	j.logger.Info("starting stale claim job")
	cutoff := j.now().UTC().Add(-j.staleAfter)

	flagged, err := j.flagger.FlagStaleRequestClaims(ctx, cutoff)
	if err != nil {
		return flagged, err
	}
	if flagged == 0 {
		j.logger.Info("no stale request claims to flag")
	} else {
		j.logger.Info("flagged stale request claims", "count", flagged, "cutoff", cutoff)
	}
	j.logger.Info("stale claim job finished")
	return flagged, nil
}
