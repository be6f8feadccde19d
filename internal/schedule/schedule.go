package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "freecal/internal/log"
)

// Scheduler runs the periodic jobs: refetching the current week and
// advancing the "now" marker. The two are independent; a clock tick never
// triggers a refetch.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	now     func() time.Time
}

// New returns a scheduler evaluating specs in loc. Standard 5-field specs
// and descriptors such as "@every 1m" are accepted.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
		),
		timeout: 2 * time.Minute,
		now:     time.Now,
	}
}

// AddRefresh schedules fn (typically Loader.Refresh) on spec. Each run gets
// its own timeout-bounded context.
func (s *Scheduler) AddRefresh(spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		started := s.now()
		if err := fn(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err, "elapsed", s.now().Sub(started))
			return
		}
		appLog.Debug("scheduled refresh done", "elapsed", s.now().Sub(started))
	})
	if err != nil {
		return fmt.Errorf("schedule: refresh spec %q: %w", spec, err)
	}
	return nil
}

// AddClock schedules fn to receive the current instant on spec.
func (s *Scheduler) AddClock(spec string, fn func(now time.Time)) error {
	_, err := s.cron.AddFunc(spec, func() {
		fn(s.now())
	})
	if err != nil {
		return fmt.Errorf("schedule: clock spec %q: %w", spec, err)
	}
	return nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		appLog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
