// Package scheduler runs recurring narrative generation on a cron schedule,
// always targeting the most recent closed period at the moment it fires.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	rcron "github.com/robfig/cron/v3"

	"github.com/kpiscribe/kpiscribe/internal/facts"
)

// RunFunc generates the narrative for one analysis period.
type RunFunc func(ctx context.Context, period facts.PeriodKey) error

// Scheduler fires a RunFunc on a standard 5-field cron expression.
type Scheduler struct {
	log            *slog.Logger
	spec           string
	closingLagDays int
	clock          clockwork.Clock
	run            RunFunc

	mu   sync.Mutex
	cron *rcron.Cron
}

// New creates a Scheduler. The clock is injectable for tests; the cron
// machinery itself runs on wall time.
func New(log *slog.Logger, spec string, closingLagDays int, clock clockwork.Clock, run RunFunc) *Scheduler {
	return &Scheduler{
		log:            log,
		spec:           spec,
		closingLagDays: closingLagDays,
		clock:          clock,
		run:            run,
	}
}

// Start validates the cron expression and begins firing. The job stops when
// ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := rcron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}

	c := rcron.New()
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("registering schedule: %w", err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.log.Info("scheduler started", "schedule", s.spec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce generates the narrative for the latest closed period. Failures are
// logged and swallowed so one bad firing never kills the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) {
	period := facts.LatestClosed(s.clock.Now(), s.closingLagDays)
	s.log.Info("scheduled generation starting", "analysis_period", period)

	if err := s.run(ctx, period); err != nil {
		s.log.Error("scheduled generation failed", "analysis_period", period, "err", err)
		return
	}
	s.log.Info("scheduled generation finished", "analysis_period", period)
}

// Stop halts future firings. Jobs already running are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.log.Info("scheduler stopped")
	}
}
