// Package scheduler runs the service's periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work. It receives a context that is cancelled
// when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Runs of the same job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func New(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		timeout: 10 * time.Minute,
	}
}

// Add registers job under spec, which may be a standard five-field
// expression or a descriptor such as "@every 1m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("background job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("background job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out")
	}
}

// Due reports whether a job with the given cron spec and last run would
// have fired at or before now. A job that never ran is due.
func Due(spec string, lastRun *time.Time, now time.Time) (bool, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return false, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if lastRun == nil {
		return true, nil
	}
	return !sched.Next(*lastRun).After(now), nil
}

// Validate checks that spec parses.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
