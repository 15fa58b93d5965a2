// Package metrics gates Prometheus collection for the whole process.
//
// Collection is off until InitRegistry is called. Every constructor in this
// package returns nil while it is off, and every consumer accepts a nil
// metrics value, so disabled metrics cost nothing.
//
// The Prometheus implementations live in pkg/metrics/prometheus and register
// themselves here from init(); import that package for side effects:
//
//	import _ "github.com/marmos91/resolvd/pkg/metrics/prometheus"
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables collection and returns the registry. Calling it again
// returns the same registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when collection is off.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset turns collection off and drops the registry.
func Reset() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}

// Handler serves the registry in the Prometheus exposition format. It responds
// 404 while collection is off.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
