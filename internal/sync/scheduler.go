package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler runs Runner at startup, then on every Interval tick and every
// Trigger signal until the context is done. A zero Interval disables the
// ticker; a nil Trigger is never ready.
type Scheduler struct {
	Runner   Runner
	Interval time.Duration
	Trigger  <-chan struct{}
	Name     string
	Logger   *slog.Logger
}

func (s *Scheduler) Run(ctx context.Context) {
	if s.Runner == nil || (s.Interval <= 0 && s.Trigger == nil) {
		return
	}

	// Run immediately at startup.
	s.runOnce(ctx, "initial")

	var tick <-chan time.Time
	if s.Interval > 0 {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.runOnce(ctx, "scheduled")
		case <-s.Trigger:
			s.runOnce(ctx, "triggered")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, kind string) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := s.Name
	if name == "" {
		name = "background"
	}

	err := s.Runner.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNothingToDo):
		logger.Debug(kind+" run skipped", "runner", name)
	case ctx.Err() != nil:
	default:
		logger.Error(kind+" run failed", "runner", name, "err", err)
	}
}
