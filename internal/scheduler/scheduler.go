// Package scheduler implements the background tasks of serve: repeating
// the session with the configured account and pruning old history.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

// Runner runs one session.
type Runner interface {
	Run(ctx context.Context, creds *workflow.Credentials) (*session.Report, error)
}

// Pruner removes recorded sessions older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg    config.ScheduleConfig
	runner Runner
	pruner Pruner

	runInterval time.Duration
	now         func() time.Time
}

// NewScheduler creates a new task scheduler. pruner may be nil when
// history is disabled.
func NewScheduler(cfg config.ScheduleConfig, runner Runner, pruner Pruner) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		runner:      runner,
		pruner:      pruner,
		runInterval: time.Duration(cfg.RunIntervalSec) * time.Second,
		now:         time.Now,
	}
}

// Start begins running all scheduled tasks and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.runInterval > 0 && s.runner != nil {
		go s.runSessionLoop(ctx)
	}

	if s.cfg.RetentionDays > 0 && s.pruner != nil {
		go s.runCleanerLoop(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runSessionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.runInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.runInterval).Msg("scheduled sessions enabled")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSession(ctx)
		}
	}
}

// runSession runs one session with the configured account. Failures are
// logged and the next tick tries again.
func (s *Scheduler) runSession(ctx context.Context) {
	report, err := s.runner.Run(ctx, nil)
	if err != nil {
		ev := log.Warn().Err(err)
		if report != nil {
			ev = ev.Str("session_id", report.SessionID)
		}
		ev.Msg("scheduled session failed")
		return
	}
	log.Info().
		Str("session_id", report.SessionID).
		Dur("duration", report.Duration).
		Msg("scheduled session completed")
}

func (s *Scheduler) runCleanerLoop(ctx context.Context) {
	for {
		nextRun := s.nextCleanupTime()
		sleep := nextRun.Sub(s.now())
		if sleep <= 0 {
			sleep = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleep).
			Msg("history cleaner scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
			s.pruneHistory(ctx)
		}
	}
}

// pruneHistory deletes sessions older than the retention window.
func (s *Scheduler) pruneHistory(ctx context.Context) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("history cleaner failed")
		return
	}
	log.Info().
		Int64("deleted_sessions", n).
		Time("cutoff", cutoff).
		Msg("history cleaner completed")
}

// nextCleanupTime returns the next occurrence of the configured HH:MM,
// defaulting to 04:00.
func (s *Scheduler) nextCleanupTime() time.Time {
	hour, minute := 4, 0
	if t, err := time.Parse("15:04", s.cfg.CleanupTime); err == nil {
		hour, minute = t.Hour(), t.Minute()
	} else if s.cfg.CleanupTime != "" {
		log.Warn().Str("cleanup_time", s.cfg.CleanupTime).Msgf("invalid cleanup time, using %02d:%02d", hour, minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
