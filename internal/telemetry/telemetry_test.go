package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "resolvd", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Profiling.Enabled)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
	assert.NotNil(t, Tracer())
}

func TestSpanHelpers_NoOpWhenDisabled(t *testing.T) {
	_, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)

	ctx, span := StartRPCSpan(context.Background(), "/resolvd.v1.Engine/GetRecord", RequestID("r-1"))
	defer span.End()

	AddEvent(ctx, "admitted")
	SetAttributes(ctx, ExportHandle(7))
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)

	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
	assert.NotNil(t, Propagator())

	_, internal := StartInternalSpan(ctx, SpanExportFetch)
	internal.End()
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		full, service, method string
	}{
		{"/resolvd.v1.Engine/GetRecord", "resolvd.v1.Engine", "GetRecord"},
		{"resolvd.v1.Engine/GetRecord", "resolvd.v1.Engine", "GetRecord"},
		{"GetRecord", "", "GetRecord"},
	}
	for _, tt := range tests {
		s, m := SplitMethod(tt.full)
		assert.Equal(t, tt.service, s, tt.full)
		assert.Equal(t, tt.method, m, tt.full)
	}
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		got  attribute.KeyValue
		key  string
		want any
	}{
		{RPCStatusCode(5), AttrRPCStatusCode, int64(5)},
		{ClientAddr("10.0.0.1:5000"), AttrClientAddr, "10.0.0.1:5000"},
		{RequestID("r"), AttrRequestID, "r"},
		{Subject("cli"), AttrSubject, "cli"},
		{ExportHandle(1 << 20), AttrExportHandle, int64(1 << 20)},
		{ExportKind("csv"), AttrExportKind, "csv"},
		{ExportLines(3), AttrExportLines, int64(3)},
		{Operation("add record"), AttrOperation, "add record"},
		{DataSource("CUSTOMERS"), AttrDataSource, "CUSTOMERS"},
		{RecordID("1"), AttrRecordID, "1"},
		{EntityID(9), AttrEntityID, int64(9)},
		{ErrorReason("RSLV0033|x"), AttrErrorReason, "RSLV0033|x"},
		{LifecycleState("active"), AttrLifecycleState, "active"},
	}
	for _, tt := range tests {
		assert.Equal(t, attribute.Key(tt.key), tt.got.Key)
		assert.Equal(t, tt.want, tt.got.Value.AsInterface(), tt.key)
	}
}

func TestInitProfiling(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())

	_, err = InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"cpu", "heap"}})
	assert.ErrorContains(t, err, `"heap"`)
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "goroutines", "mutex_count"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileGoroutines,
		pyroscope.ProfileMutexCount,
	}, types)
}
