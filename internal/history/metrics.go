package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_push_total",
		Help: "Operations pushed by kind and status",
	}, []string{"kind", "status"})

	pushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opshistory_push_duration_seconds",
		Help:    "Time to snapshot and record an operation",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	undoTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_undo_total",
		Help: "Undo calls by status",
	}, []string{"status"})

	redoTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_redo_total",
		Help: "Redo calls by status",
	}, []string{"status"})

	evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_evictions_total",
		Help: "Operations evicted by reason",
	}, []string{"reason"})

	codecFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_codec_fallbacks_total",
		Help: "Snapshots encoded with the fallback codec, by failing codec",
	}, []string{"codec"})

	handlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_handler_failures_total",
		Help: "Event handler failures by event",
	}, []string{"event"})

	// Note: shared by every engine in the process; reports the last writer.
	historyBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opshistory_history_bytes",
		Help: "Snapshot bytes held by the most recently updated history",
	})

	persistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opshistory_persist_total",
		Help: "History file saves and loads by status",
	}, []string{"operation", "status"})
)

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
