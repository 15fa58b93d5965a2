package prometheus

import (
	"time"

	"github.com/marmos91/resolvd/pkg/engine/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics is the Prometheus implementation of badger.Metrics.
type engineMetrics struct {
	txns      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	conflicts *prometheus.CounterVec
}

var engineSets perRegistry[*engineMetrics]

// NewEngineMetrics returns BadgerDB transaction metrics, or nil when collection
// is off.
func NewEngineMetrics() badger.Metrics {
	m, ok := engineSets.get(func(f promauto.Factory) *engineMetrics {
		return &engineMetrics{
			txns: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "badger_transactions_total",
					Help:      "Engine transactions by operation and status",
				},
				[]string{"operation", "status"}, // status: "ok", "error"
			),
			duration: f.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "badger_transaction_duration_milliseconds",
					Help:      "Engine transaction latency in milliseconds, retries included",
					Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
				},
				[]string{"operation"},
			),
			conflicts: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "badger_conflicts_total",
					Help:      "Write conflicts that triggered a retry",
				},
				[]string{"operation"},
			),
		}
	})
	if !ok {
		return nil
	}
	return m
}

func (m *engineMetrics) ObserveTxn(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.txns.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000)
}

func (m *engineMetrics) RecordConflict(op string) {
	m.conflicts.WithLabelValues(op).Inc()
}
