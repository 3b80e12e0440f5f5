// Package scheduler fires the monthly report job on the second day of every
// month at midnight UTC.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
)

// RunDay is the day of the month the report job runs on.
const RunDay = 2

// NextRun returns the first RunDay 00:00 UTC strictly after t.
func NextRun(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), RunDay, 0, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// Config configures a Scheduler.
type Config struct {
	// Job is called at every fire time. Its error is logged and the
	// schedule continues.
	Job    func(ctx context.Context) error
	Clock  core.Clock
	Logger *slog.Logger
	// After defaults to time.After.
	After func(d time.Duration) <-chan time.Time
}

type Scheduler struct {
	job    func(ctx context.Context) error
	clock  core.Clock
	logger *slog.Logger
	after  func(d time.Duration) <-chan time.Time
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		job:    cfg.Job,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		after:  cfg.After,
	}
	if s.clock == nil {
		s.clock = core.SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.after == nil {
		s.after = time.After
	}
	s.logger = s.logger.With(applog.FieldComponent, applog.ComponentScheduler)
	return s
}

// Run blocks until ctx is cancelled, running the job at every fire time.
// A job in progress when ctx is cancelled receives the cancelled context.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "Scheduler stopped")
			return nil
		}
		now := s.clock.Now()
		next := NextRun(now)
		s.logger.InfoContext(ctx, "Next report run scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")
			return nil
		case <-s.after(next.Sub(now)):
		}

		start := s.clock.Now()
		if err := s.job(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled report run failed",
				applog.FieldOperation, applog.OpTrigger,
				applog.FieldError, err.Error())
			continue
		}
		s.logger.InfoContext(ctx, "Scheduled report run completed",
			applog.FieldOperation, applog.OpTrigger,
			"elapsed", s.clock.Now().Sub(start))
	}
}
