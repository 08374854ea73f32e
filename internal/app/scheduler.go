/**
 * @description
 * Cron scheduler setup for the periodic batch jobs. The HTTP trigger
 * endpoints invoke the same job methods, so cron and manual runs share the
 * identical code path.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/joseairosa/codesalvage-sub004/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.ReleaseEscrowCron, s.jobs.RunReleaseEscrow); err != nil {
		s.logger.Error("failed to schedule escrow release job", "error", err)
	} else {
		s.logger.Info("scheduled escrow release job", "schedule", s.config.ReleaseEscrowCron)
	}

	if _, err := s.cron.AddFunc(s.config.ProcessTransfersCron, s.jobs.RunProcessTransfers); err != nil {
		s.logger.Error("failed to schedule transfer processing job", "error", err)
	} else {
		s.logger.Info("scheduled transfer processing job", "schedule", s.config.ProcessTransfersCron)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
