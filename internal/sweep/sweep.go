// Package sweep runs the periodic feedback-reminder sweep and display-field
// reconciliation on a cron schedule.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"recruitline/internal/engine"
)

// Jobs is the slice of the engine the scheduler drives.
type Jobs interface {
	SweepFeedbackReminders(ctx context.Context) (engine.SweepResult, error)
	ReconcileDisplayFields(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	spec   string
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a Scheduler firing on spec, e.g. "@every 15m" or "*/10 * * * *".
func New(jobs Jobs, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		jobs:   jobs,
		spec:   spec,
		logger: logger,
	}
}

// Start registers the job, starts the scheduler and runs one pass right away.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "spec", s.spec)
	go s.RunOnce(ctx)
	return nil
}

// Stop stops scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}

// RunOnce performs one sweep and reconciliation. Passes never overlap.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.mu.TryLock() {
		s.logger.Debug("sweep already running, skipping tick")
		return
	}
	defer s.mu.Unlock()
	res, err := s.jobs.SweepFeedbackReminders(ctx)
	if err != nil {
		s.logger.Error("feedback reminder sweep failed", "err", err)
	} else {
		s.logger.Info("feedback reminder sweep", "due", res.Due, "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	}
	n, err := s.jobs.ReconcileDisplayFields(ctx)
	if err != nil {
		s.logger.Error("display field reconciliation failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("display fields refreshed", "interviews", n)
	}
}
