package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncViewProcessed is a no-op.
func (n *NoopRecorder) IncViewProcessed(outcome string) {}

// IncBucketWriteFailed is a no-op.
func (n *NoopRecorder) IncBucketWriteFailed() {}

// ObserveCountDuration is a no-op.
func (n *NoopRecorder) ObserveCountDuration(duration time.Duration) {}

// ObserveFlushBatchSize is a no-op.
func (n *NoopRecorder) ObserveFlushBatchSize(size int) {}

// ObserveFlushDuration is a no-op.
func (n *NoopRecorder) ObserveFlushDuration(duration time.Duration) {}

// SetPendingBufferDepth is a no-op.
func (n *NoopRecorder) SetPendingBufferDepth(depth int64) {}

// AddPrunedRows is a no-op.
func (n *NoopRecorder) AddPrunedRows(rows int64) {}
