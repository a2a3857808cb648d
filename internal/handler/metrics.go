package handler

import (
	"fmt"
	"net/http"

	"github.com/viewtally/viewtally/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "viewtally_views_processed_total{outcome=\"counted\"} %d\n", snap.ViewsCounted)
	writeMetric(w, "viewtally_views_processed_total{outcome=\"deduped\"} %d\n", snap.ViewsDeduped)
	writeMetric(w, "viewtally_views_processed_total{outcome=\"excluded\"} %d\n", snap.ViewsExcluded)
	writeMetric(w, "viewtally_views_processed_total{outcome=\"invalid\"} %d\n", snap.ViewsInvalid)

	writeMetric(w, "viewtally_bucket_write_failures_total %d\n", snap.BucketWriteFails)
	writeMetric(w, "viewtally_count_duration_seconds_count %d\n", snap.CountDurationCount)
	writeMetric(w, "viewtally_count_duration_seconds_sum %.6f\n", float64(snap.CountDurationNs)/1e9)

	writeMetric(w, "viewtally_flush_batches_total %d\n", snap.FlushBatches)
	writeMetric(w, "viewtally_flush_rows_total %d\n", snap.FlushRowsTotal)
	writeMetric(w, "viewtally_pending_buffer_depth %d\n", snap.PendingBufferDepth)

	writeMetric(w, "viewtally_pruned_rows_total %d\n", snap.PrunedRows)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
