package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/metrics"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests share the process-wide registry and do not run in parallel.
func enable(t *testing.T) {
	t.Helper()
	metrics.Reset()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)
}

func TestConstructors_NilWhenDisabled(t *testing.T) {
	metrics.Reset()

	assert.Nil(t, NewGateMetrics())
	assert.Nil(t, NewExportMetrics())
	assert.Nil(t, NewRPCMetrics())
	assert.Nil(t, NewEngineMetrics())
	assert.Nil(t, metrics.NewGateMetrics())
}

func TestConstructors_RegisteredWithMetricsPackage(t *testing.T) {
	enable(t)

	assert.NotNil(t, metrics.NewGateMetrics())
	assert.NotNil(t, metrics.NewExportMetrics())
	assert.NotNil(t, metrics.NewRPCMetrics())
	assert.NotNil(t, metrics.NewEngineMetrics())
}

func TestConstructors_ReuseCollectorsPerRegistry(t *testing.T) {
	enable(t)

	require.NotPanics(t, func() {
		NewGateMetrics()
		NewGateMetrics()
	})
	assert.Same(t, NewGateMetrics(), NewGateMetrics())
}

func TestGateMetrics(t *testing.T) {
	enable(t)

	m := NewGateMetrics().(*gateMetrics)
	m.RecordAdmission(true)
	m.RecordAdmission(true)
	m.RecordAdmission(false)
	m.SetInFlight(4)
	m.SetState(admission.StateDestroying)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.admissions.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admissions.WithLabelValues("rejected")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state))
}

func TestExportMetrics(t *testing.T) {
	enable(t)

	m := NewExportMetrics().(*exportMetrics)
	m.SessionOpened(engine.ExportCSV)
	m.LineFetched(engine.ExportCSV)
	m.LineFetched(engine.ExportCSV)
	m.SessionClosed(engine.ExportCSV)
	m.SetOpenSessions(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.opened.WithLabelValues("csv")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lines.WithLabelValues("csv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("csv")))
	assert.Zero(t, testutil.ToFloat64(m.open))
}

func TestRPCMetrics(t *testing.T) {
	enable(t)

	m := NewRPCMetrics().(*rpcMetrics)
	m.ObserveCall("/resolvd.v1.Engine/GetRecord", "NOT_FOUND", 3*time.Millisecond)
	m.ObserveRateLimited("/resolvd.v1.Engine/GetRecord")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/resolvd.v1.Engine/GetRecord", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("/resolvd.v1.Engine/GetRecord")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestEngineMetrics(t *testing.T) {
	enable(t)

	m := NewEngineMetrics().(*engineMetrics)
	m.ObserveTxn("add record", time.Millisecond, nil)
	m.ObserveTxn("add record", time.Millisecond, errors.New("boom"))
	m.RecordConflict("add record")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.txns.WithLabelValues("add record", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txns.WithLabelValues("add record", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("add record")))
}
