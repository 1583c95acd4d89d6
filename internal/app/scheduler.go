package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/observability"
)

const (
	ModeOneshot  = "oneshot"
	ModeInterval = "interval"
	ModeCron     = "cron"
)

// RunFunc performs one complete run.
type RunFunc func(ctx context.Context)

// Scheduler repeats runs according to scheduler.mode until ctx is cancelled.
// Runs never overlap.
type Scheduler struct {
	mode     string
	interval time.Duration
	cronExpr string
	run      RunFunc
	logger   *observability.Logger
}

func NewScheduler(cfg *config.Config, run RunFunc, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		mode:     cfg.Scheduler.Mode,
		interval: cfg.GetSchedulerInterval(),
		cronExpr: cfg.Scheduler.CronExpr,
		run:      run,
		logger:   logger,
	}
}

// Start blocks until the schedule ends: after one run in oneshot mode,
// otherwise when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	switch s.mode {
	case ModeOneshot, "":
		s.run(ctx)
		return nil
	case ModeInterval:
		return s.startInterval(ctx)
	case ModeCron:
		return s.startCron(ctx)
	default:
		return fmt.Errorf("unknown scheduler mode: %s", s.mode)
	}
}

func (s *Scheduler) startInterval(ctx context.Context) error {
	s.logger.Info("Starting interval scheduler", "interval", s.interval.String())

	// First run immediately, then on every tick
	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Interval scheduler stopped")
			return nil
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) startCron(ctx context.Context) error {
	// Standard 5-field cron (minute hour day month weekday)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DefaultLogger)),
	)

	if _, err := c.AddFunc(s.cronExpr, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cronExpr, err)
	}

	c.Start()
	s.logger.Info("Cron scheduler started", "cron_expr", s.cronExpr)

	<-ctx.Done()

	// Wait for a running job to finish
	<-c.Stop().Done()
	s.logger.Info("Cron scheduler stopped")
	return nil
}
