// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Counting path metrics. Outcome is one of "counted", "deduped",
	// "excluded", "invalid".
	IncViewProcessed(outcome string)
	IncBucketWriteFailed()
	ObserveCountDuration(duration time.Duration)

	// Write-behind flush metrics
	ObserveFlushBatchSize(size int)
	ObserveFlushDuration(duration time.Duration)
	SetPendingBufferDepth(depth int64)

	// Maintenance metrics
	AddPrunedRows(rows int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
