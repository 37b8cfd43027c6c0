// Package schedule runs a job at every tick of a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// NextTime computes the next run time for a cron expression after ref in
// the given timezone ("" is UTC).
func NextTime(expr, tz string, ref time.Time) (time.Time, error) {
	loc, err := location(tz)
	if err != nil {
		return time.Time{}, err
	}
	if !gronx.New().IsValid(expr) {
		return time.Time{}, fmt.Errorf("invalid cron expression %q", expr)
	}
	next, err := gronx.NextTickAfter(expr, ref.In(loc), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to compute next tick for %q: %w", expr, err)
	}
	return next.UTC(), nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Job is one scheduled run.
type Job func(ctx context.Context) error

// Scheduler waits for each tick and runs the job. Runs never overlap: a
// tick that passes while the job is running is skipped.
type Scheduler struct {
	expr   string
	tz     string
	logger *slog.Logger

	// OnNext is called with every computed tick before waiting for it.
	OnNext func(next time.Time)

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(expr, tz string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := NextTime(expr, tz, time.Now()); err != nil {
		return nil, err
	}
	return &Scheduler{expr: expr, tz: tz, logger: logger, now: time.Now, after: time.After}, nil
}

// Run loops until ctx is done. Job failures are logged and do not stop
// the schedule.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	for {
		next, err := NextTime(s.expr, s.tz, s.now())
		if err != nil {
			return err
		}
		if s.OnNext != nil {
			s.OnNext(next)
		}
		s.logger.Info("next scheduled migration", "at", next, "cron", s.expr)

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
		}

		start := s.now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled migration failed", "error", err, "elapsed", s.now().Sub(start))
		} else {
			s.logger.Info("scheduled migration finished", "elapsed", s.now().Sub(start))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
