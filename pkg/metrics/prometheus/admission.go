package prometheus

import (
	"github.com/marmos91/resolvd/pkg/runtime/admission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gateMetrics is the Prometheus implementation of admission.Metrics.
type gateMetrics struct {
	admissions *prometheus.CounterVec
	inFlight   prometheus.Gauge
	state      prometheus.Gauge
}

var gates perRegistry[*gateMetrics]

// NewGateMetrics returns admission metrics, or nil when collection is off.
func NewGateMetrics() admission.Metrics {
	m, ok := gates.get(func(f promauto.Factory) *gateMetrics {
		return &gateMetrics{
			admissions: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "admission_total",
					Help:      "Calls offered to the admission gate by outcome",
				},
				[]string{"outcome"}, // "admitted", "rejected"
			),
			inFlight: f.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_operations",
				Help:      "Admitted operations that have not completed",
			}),
			state: f.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lifecycle_state",
				Help:      "Environment state: 0 active, 1 destroying, 2 destroyed",
			}),
		}
	})
	if !ok {
		return nil
	}
	return m
}

func (m *gateMetrics) RecordAdmission(admitted bool) {
	outcome := "rejected"
	if admitted {
		outcome = "admitted"
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *gateMetrics) SetInFlight(n int) {
	m.inFlight.Set(float64(n))
}

func (m *gateMetrics) SetState(s admission.State) {
	m.state.Set(float64(s))
}
