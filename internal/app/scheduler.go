/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron               *cron.Cron
	jobs               *Jobs
	logger             *slog.Logger
	staleClaimSchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, staleClaimSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:               c,
		jobs:               jobs,
		logger:             logger,
		staleClaimSchedule: staleClaimSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler. It fails when a schedule
// cannot be parsed.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.staleClaimSchedule, s.jobs.FlagStaleClaims); err != nil {
		s.logger.Error("failed to schedule stale claim job", "error", err)
		return err
	}
	s.logger.Info("scheduled stale claim job", "schedule", s.staleClaimSchedule)

	s.cron.Start()
	return nil
}

// Stop stops the cron scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
