package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/me/apron/internal/policy"
	"github.com/me/apron/pkg/model"
)

// Runner drives a Scheduler without an operator in the loop.
type Runner interface {
	// Start begins the dispatch loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the loop.
	Stop() error

	// Tick runs a single dispatch iteration. Used for testing.
	Tick(ctx context.Context) error
}

// LoopConfig holds auto-dispatch configuration.
type LoopConfig struct {
	PollInterval time.Duration
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{PollInterval: time.Second}
}

// Loop implements Runner by calling ScheduleNext with the automatic policy
// on every poll interval.
type Loop struct {
	sched  *Scheduler
	config LoopConfig
	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a new dispatch loop.
func NewLoop(sched *Scheduler, cfg LoopConfig, logger *slog.Logger) *Loop {
	return &Loop{
		sched:  sched,
		config: cfg,
		logger: logger.With("component", "dispatch"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the dispatch loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("dispatch started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("dispatch stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop shuts down the loop and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick schedules flights until the queue is empty, every runway is busy,
// or a pick fails. Waiting flights stay queued for the next tick.
func (l *Loop) Tick(ctx context.Context) error {
	dispatched := 0
	defer func() {
		if dispatched > 0 {
			l.logger.Debug("tick", "dispatched", dispatched)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := l.sched.ScheduleNext(ctx, policy.Auto())
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, model.ErrEmptyQueue):
			return nil
		case errors.As(err, new(*model.UnitUnavailableError)), errors.As(err, new(*SelectionError)):
			return nil
		default:
			return err
		}
	}
}
