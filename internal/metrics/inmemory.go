package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ViewsCounted       uint64
	ViewsDeduped       uint64
	ViewsExcluded      uint64
	ViewsInvalid       uint64
	BucketWriteFails   uint64
	CountDurationCount uint64
	CountDurationNs    int64
	FlushBatches       uint64
	FlushRowsTotal     uint64
	PrunedRows         uint64
	PendingBufferDepth int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	viewsCounted       uint64
	viewsDeduped       uint64
	viewsExcluded      uint64
	viewsInvalid       uint64
	bucketWriteFails   uint64
	countDurationCount uint64
	countDurationNs    int64
	flushBatches       uint64
	flushRowsTotal     uint64
	prunedRows         uint64
	pendingDepth       int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		ViewsCounted:       atomic.LoadUint64(&m.viewsCounted),
		ViewsDeduped:       atomic.LoadUint64(&m.viewsDeduped),
		ViewsExcluded:      atomic.LoadUint64(&m.viewsExcluded),
		ViewsInvalid:       atomic.LoadUint64(&m.viewsInvalid),
		BucketWriteFails:   atomic.LoadUint64(&m.bucketWriteFails),
		CountDurationCount: atomic.LoadUint64(&m.countDurationCount),
		CountDurationNs:    atomic.LoadInt64(&m.countDurationNs),
		FlushBatches:       atomic.LoadUint64(&m.flushBatches),
		FlushRowsTotal:     atomic.LoadUint64(&m.flushRowsTotal),
		PrunedRows:         atomic.LoadUint64(&m.prunedRows),
		PendingBufferDepth: atomic.LoadInt64(&m.pendingDepth),
	}
}

// IncViewProcessed increments the counter for one counting outcome.
func (m *InMemoryRecorder) IncViewProcessed(outcome string) {
	switch outcome {
	case "counted":
		atomic.AddUint64(&m.viewsCounted, 1)
	case "deduped":
		atomic.AddUint64(&m.viewsDeduped, 1)
	case "excluded":
		atomic.AddUint64(&m.viewsExcluded, 1)
	default:
		atomic.AddUint64(&m.viewsInvalid, 1)
	}
}

// IncBucketWriteFailed increments the failed bucket write counter.
func (m *InMemoryRecorder) IncBucketWriteFailed() {
	atomic.AddUint64(&m.bucketWriteFails, 1)
}

// ObserveCountDuration records the duration of one counting request.
func (m *InMemoryRecorder) ObserveCountDuration(duration time.Duration) {
	atomic.AddUint64(&m.countDurationCount, 1)
	atomic.AddInt64(&m.countDurationNs, duration.Nanoseconds())
}

// ObserveFlushBatchSize records rows replayed by one flush.
func (m *InMemoryRecorder) ObserveFlushBatchSize(size int) {
	atomic.AddUint64(&m.flushBatches, 1)
	atomic.AddUint64(&m.flushRowsTotal, uint64(size))
}

// ObserveFlushDuration is tracked only by external recorders.
func (m *InMemoryRecorder) ObserveFlushDuration(duration time.Duration) {}

// SetPendingBufferDepth records the buffered counter backlog.
func (m *InMemoryRecorder) SetPendingBufferDepth(depth int64) {
	atomic.StoreInt64(&m.pendingDepth, depth)
}

// AddPrunedRows accumulates rows removed by maintenance pruning.
func (m *InMemoryRecorder) AddPrunedRows(rows int64) {
	if rows > 0 {
		atomic.AddUint64(&m.prunedRows, uint64(rows))
	}
}
