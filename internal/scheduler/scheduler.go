package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/model"
)

const (
	DefaultInterval     = time.Hour
	DefaultCycleTimeout = 10 * time.Minute
)

// Runner runs one cycle. Implemented by *engine.Coordinator.
type Runner interface {
	RunCycle(ctx context.Context, opts engine.RunOpts) (*model.CycleRun, error)
}

// Hook runs after a cycle committed, whether or not some documents failed.
// Hook errors are logged and do not affect the cycle.
type Hook func(ctx context.Context, run *model.CycleRun) error

// Config tunes a Scheduler.
type Config struct {
	// Interval between scheduled cycles. Defaults to one hour.
	Interval time.Duration
	// CycleTimeout is the deadline given to every cycle. Defaults to ten
	// minutes.
	CycleTimeout time.Duration
	// RunOnStart runs a cycle as soon as Run is called.
	RunOnStart bool
	Logger     *slog.Logger
}

// Scheduler invokes a Runner on a cadence and on demand.
type Scheduler struct {
	runner   Runner
	guard    *Guard
	interval time.Duration
	timeout  time.Duration
	onStart  bool
	logger   *slog.Logger

	mu    sync.Mutex
	hooks []Hook
}

// New creates a Scheduler that checks guard before every cycle.
func New(runner Runner, guard *Guard, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		runner:   runner,
		guard:    guard,
		interval: cfg.Interval,
		timeout:  cfg.CycleTimeout,
		onStart:  cfg.RunOnStart,
		logger:   cfg.Logger,
	}
}

// AfterCycle registers a hook called, in registration order, after every
// committed cycle. Dry runs and failed cycles do not call hooks.
func (s *Scheduler) AfterCycle(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Busy reports whether a cycle is active.
func (s *Scheduler) Busy() bool {
	return s.guard.Active()
}

// Trigger runs a cycle now. If another cycle is active it returns a
// SCHEDULING_CONFLICT error immediately.
func (s *Scheduler) Trigger(ctx context.Context, opts engine.RunOpts) (*model.CycleRun, error) {
	release, ok := s.guard.TryAcquire()
	if !ok {
		return nil, &engine.SyncError{
			Code:    engine.ErrCodeSchedulingConflict,
			Message: "a cycle is already active",
		}
	}
	defer release()

	cycleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	run, err := s.runner.RunCycle(cycleCtx, opts)
	cancel()

	if run != nil && !opts.DryRun && committed(run.Status) {
		s.runHooks(ctx, run)
	}
	if err != nil {
		return run, fmt.Errorf("run cycle: %w", err)
	}
	return run, nil
}

func committed(status model.CycleStatus) bool {
	return status == model.StatusSucceeded || status == model.StatusPartiallyFailed
}

func (s *Scheduler) runHooks(ctx context.Context, run *model.CycleRun) {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx, run); err != nil {
			s.logger.Error("after-cycle hook failed", "cycle_id", run.ID, "err", err)
		}
	}
}

// Run triggers a scheduled cycle every Interval until ctx is done. A tick
// that finds a cycle active is skipped. Cycle failures are logged and do
// not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "cycle_timeout", s.timeout)

	if s.onStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	run, err := s.Trigger(ctx, engine.RunOpts{Trigger: model.TriggerScheduled})
	switch {
	case engine.IsSchedulingConflict(err):
		s.logger.Info("scheduled cycle skipped, previous cycle still active")
	case err != nil:
		s.logger.Error("scheduled cycle failed", "err", err)
	case run.Status == model.StatusPartiallyFailed:
		s.logger.Warn("scheduled cycle partially failed", "cycle_id", run.ID, "failed", run.Failed)
	}
}
