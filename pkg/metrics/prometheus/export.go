package prometheus

import (
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// exportMetrics is the Prometheus implementation of export.Metrics.
type exportMetrics struct {
	opened *prometheus.CounterVec
	closed *prometheus.CounterVec
	lines  *prometheus.CounterVec
	open   prometheus.Gauge
}

var exportSets perRegistry[*exportMetrics]

// NewExportMetrics returns export session metrics, or nil when collection is
// off.
func NewExportMetrics() export.Metrics {
	m, ok := exportSets.get(func(f promauto.Factory) *exportMetrics {
		return &exportMetrics{
			opened: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "export_sessions_opened_total",
					Help:      "Export sessions opened by report kind",
				},
				[]string{"kind"}, // "csv", "json"
			),
			closed: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "export_sessions_closed_total",
					Help:      "Export sessions closed by report kind",
				},
				[]string{"kind"},
			),
			lines: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "export_lines_total",
					Help:      "Report lines delivered by report kind",
				},
				[]string{"kind"},
			),
			open: f.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "export_sessions_open",
				Help:      "Export sessions currently registered",
			}),
		}
	})
	if !ok {
		return nil
	}
	return m
}

func (m *exportMetrics) SessionOpened(kind engine.ExportKind) {
	m.opened.WithLabelValues(string(kind)).Inc()
}

func (m *exportMetrics) SessionClosed(kind engine.ExportKind) {
	m.closed.WithLabelValues(string(kind)).Inc()
}

func (m *exportMetrics) LineFetched(kind engine.ExportKind) {
	m.lines.WithLabelValues(string(kind)).Inc()
}

func (m *exportMetrics) SetOpenSessions(n int) {
	m.open.Set(float64(n))
}
