// Package prometheus implements the metrics interfaces with client_golang and
// registers the constructors with pkg/metrics on import.
package prometheus

import (
	"sync"

	"github.com/marmos91/resolvd/pkg/engine/badger"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/marmos91/resolvd/pkg/metrics"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resolvd"

func init() {
	metrics.RegisterConstructors(
		func() admission.Metrics { return NewGateMetrics() },
		func() export.Metrics { return NewExportMetrics() },
		func() metrics.RPCMetrics { return NewRPCMetrics() },
		func() badger.Metrics { return NewEngineMetrics() },
	)
}

// perRegistry builds a collector set once per registry; registering the same
// names twice on one registry panics.
type perRegistry[T any] struct {
	mu    sync.Mutex
	built map[*prometheus.Registry]T
}

func (p *perRegistry[T]) get(build func(f promauto.Factory) T) (T, bool) {
	var zero T
	reg := metrics.GetRegistry()
	if reg == nil {
		return zero, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.built[reg]; ok {
		return v, true
	}
	if p.built == nil {
		p.built = make(map[*prometheus.Registry]T)
	}
	v := build(promauto.With(reg))
	p.built[reg] = v
	return v, true
}
