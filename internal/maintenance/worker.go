package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultFlushInterval is how often buffered views are flushed.
	DefaultFlushInterval = 30 * time.Second

	// DefaultResetInterval is how often the retention prune runs.
	DefaultResetInterval = 24 * time.Hour
)

// Worker schedules the maintenance jobs on fixed intervals.
type Worker struct {
	jobs          *Maintenance
	logger        *slog.Logger
	flushInterval time.Duration
	resetInterval time.Duration
	retention     time.Duration

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a maintenance worker. Zero intervals fall back to the
// defaults; a zero retention disables pruning entirely.
func NewWorker(jobs *Maintenance, logger *slog.Logger, flushInterval, resetInterval, retention time.Duration) *Worker {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if resetInterval <= 0 {
		resetInterval = DefaultResetInterval
	}
	return &Worker{
		jobs:          jobs,
		logger:        logger.With("component", "maintenance.worker"),
		flushInterval: flushInterval,
		resetInterval: resetInterval,
		retention:     retention,
	}
}

// Run starts the scheduling loop. Blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	flush := time.NewTicker(w.flushInterval)
	defer flush.Stop()
	reset := time.NewTicker(w.resetInterval)
	defer reset.Stop()

	w.logger.Info("maintenance worker started",
		"flush_interval", w.flushInterval.String(),
		"reset_interval", w.resetInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("maintenance worker stopping")
			return ctx.Err()
		case <-flush.C:
			if _, err := w.jobs.RunCacheFlush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("cache flush failed", "error", err)
			}
		case <-reset.C:
			if _, err := w.jobs.RunDailyReset(ctx, w.retention); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("daily reset failed", "error", err)
			}
		}
	}
}

// Shutdown stops the loop and runs one final flush so buffered views are not
// stranded in Redis across a restart. It implements server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("maintenance worker shutdown initiated")

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			w.logger.Warn("maintenance worker shutdown timed out")
			return ctx.Err()
		}
	}

	if _, err := w.jobs.RunCacheFlush(ctx); err != nil {
		w.logger.Error("final flush failed", "error", err)
		return err
	}
	w.logger.Info("maintenance worker shutdown complete")
	return nil
}
