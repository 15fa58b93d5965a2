package prometheus

import (
	"time"

	"github.com/marmos91/resolvd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// rpcMetrics is the Prometheus implementation of metrics.RPCMetrics.
type rpcMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimited *prometheus.CounterVec
}

var rpcSets perRegistry[*rpcMetrics]

// NewRPCMetrics returns RPC metrics, or nil when collection is off.
func NewRPCMetrics() metrics.RPCMetrics {
	m, ok := rpcSets.get(func(f promauto.Factory) *rpcMetrics {
		return &rpcMetrics{
			requests: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rpc_requests_total",
					Help:      "Completed RPC calls by method and status code",
				},
				[]string{"method", "code"},
			),
			duration: f.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "rpc_duration_seconds",
					Help:      "RPC call latency in seconds",
					Buckets: []float64{
						0.0005, // 500us - cached lookups
						0.001,
						0.005,
						0.01,
						0.05,
						0.1,
						0.5,
						1,
						5, // long drains and streamed exports
						30,
					},
				},
				[]string{"method"},
			),
			rateLimited: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rpc_rate_limited_total",
					Help:      "Calls refused by the rate limiter",
				},
				[]string{"method"},
			),
		}
	})
	if !ok {
		return nil
	}
	return m
}

func (m *rpcMetrics) ObserveCall(method, code string, d time.Duration) {
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *rpcMetrics) ObserveRateLimited(method string) {
	m.rateLimited.WithLabelValues(method).Inc()
}
