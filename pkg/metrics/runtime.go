package metrics

import (
	"time"

	"github.com/marmos91/resolvd/pkg/engine/badger"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
)

// RPCMetrics observes completed RPC calls.
type RPCMetrics interface {
	ObserveCall(method, code string, d time.Duration)
	ObserveRateLimited(method string)
}

// Constructors registered by pkg/metrics/prometheus. Indirection keeps this
// package free of the implementation and its import of this package.
var (
	newGateMetrics   func() admission.Metrics
	newExportMetrics func() export.Metrics
	newRPCMetrics    func() RPCMetrics
	newEngineMetrics func() badger.Metrics
)

// RegisterConstructors installs the Prometheus implementations.
func RegisterConstructors(
	gate func() admission.Metrics,
	exports func() export.Metrics,
	rpc func() RPCMetrics,
	eng func() badger.Metrics,
) {
	newGateMetrics, newExportMetrics, newRPCMetrics, newEngineMetrics = gate, exports, rpc, eng
}

// NewGateMetrics returns admission metrics, or nil when collection is off.
func NewGateMetrics() admission.Metrics {
	if !IsEnabled() || newGateMetrics == nil {
		return nil
	}
	return newGateMetrics()
}

// NewExportMetrics returns export session metrics, or nil when collection is
// off.
func NewExportMetrics() export.Metrics {
	if !IsEnabled() || newExportMetrics == nil {
		return nil
	}
	return newExportMetrics()
}

// NewRPCMetrics returns RPC metrics, or nil when collection is off.
func NewRPCMetrics() RPCMetrics {
	if !IsEnabled() || newRPCMetrics == nil {
		return nil
	}
	return newRPCMetrics()
}

// NewEngineMetrics returns engine transaction metrics, or nil when collection
// is off.
func NewEngineMetrics() badger.Metrics {
	if !IsEnabled() || newEngineMetrics == nil {
		return nil
	}
	return newEngineMetrics()
}
