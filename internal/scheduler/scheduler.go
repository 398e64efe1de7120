package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Task is one unit of periodic work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs its tasks in order on every tick. The first tick fires
// immediately.
type Scheduler struct {
	logger   *slog.Logger
	interval time.Duration
	tasks    []Task
}

// New creates a Scheduler.
func New(logger *slog.Logger, interval time.Duration, tasks ...Task) *Scheduler {
	return &Scheduler{
		logger:   logger.With(slog.String("component", "scheduler")),
		interval: interval,
		tasks:    tasks,
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval), slog.Int("tasks", len(s.tasks)))
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("task failed", slog.String("task", task.Name()), slog.Any("error", err))
			continue
		}
		s.logger.Debug("task done", slog.String("task", task.Name()), slog.Duration("elapsed", time.Since(start)))
	}
}
