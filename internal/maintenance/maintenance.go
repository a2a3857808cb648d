// Package maintenance runs the background jobs that keep the views tables
// healthy: flushing Redis-buffered increments into Postgres and pruning
// expired day-bucket rows.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viewtally/viewtally/internal/metrics"
	"github.com/viewtally/viewtally/internal/model"
)

// Store is the durable side the jobs write to.
type Store interface {
	BulkIncrementViews(ctx context.Context, records []model.ViewRecord) error
	PruneViewsOlderThan(ctx context.Context, bucket model.BucketType, cutoffPeriodKey string) (int64, error)
}

// Buffer is the Redis fast-path buffer the flush job drains.
type Buffer interface {
	DrainBufferedViews(ctx context.Context) ([]model.ViewRecord, error)
	PendingViewCount(ctx context.Context) (int64, error)
}

// Maintenance holds the job implementations. The ticker loop that schedules
// them lives in Worker.
type Maintenance struct {
	store   Store
	buffer  Buffer // nil when the fast path is disabled
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// New builds the job set. buffer may be nil; flushes then become no-ops.
func New(store Store, buffer Buffer, logger *slog.Logger, recorder metrics.Recorder) *Maintenance {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Maintenance{
		store:   store,
		buffer:  buffer,
		logger:  logger.With("component", "maintenance"),
		metrics: recorder,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Maintenance) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// RunCacheFlush drains the buffered increments and applies them to Postgres
// in one bulk upsert pass. Returns the number of rows flushed.
//
// If the bulk write fails the drained records are lost from the buffer; the
// caller's flush interval bounds how many views that can be, and the error is
// surfaced so the failure is visible.
func (m *Maintenance) RunCacheFlush(ctx context.Context) (int, error) {
	if m.buffer == nil {
		return 0, nil
	}

	start := m.now()
	records, err := m.buffer.DrainBufferedViews(ctx)
	if err != nil {
		return 0, fmt.Errorf("drain view buffer: %w", err)
	}
	if len(records) == 0 {
		m.metrics.SetPendingBufferDepth(0)
		return 0, nil
	}

	if err := m.store.BulkIncrementViews(ctx, records); err != nil {
		return 0, fmt.Errorf("flush %d view rows: %w", len(records), err)
	}

	m.metrics.ObserveFlushBatchSize(len(records))
	m.metrics.ObserveFlushDuration(m.now().Sub(start))
	if depth, err := m.buffer.PendingViewCount(ctx); err == nil {
		m.metrics.SetPendingBufferDepth(depth)
	}

	m.logger.Info("flushed buffered views",
		"rows", len(records),
		"duration_ms", m.now().Sub(start).Milliseconds(),
	)
	return len(records), nil
}

// RunDailyReset deletes day-bucket rows older than the retention window.
// Week, month, year, and total rows are never pruned. A retention of zero or
// less disables pruning.
func (m *Maintenance) RunDailyReset(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := m.now().Add(-retention)
	cutoffKey := model.PeriodKey(model.BucketDay, cutoff)

	pruned, err := m.store.PruneViewsOlderThan(ctx, model.BucketDay, cutoffKey)
	if err != nil {
		return 0, fmt.Errorf("prune day rows before %s: %w", cutoffKey, err)
	}
	if pruned > 0 {
		m.metrics.AddPrunedRows(pruned)
		m.logger.Info("pruned expired day rows", "rows", pruned, "cutoff", cutoffKey)
	}
	return pruned, nil
}
