package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. RPC keys follow the OpenTelemetry semantic conventions;
// domain keys use the "resolvd." prefix.
const (
	// ========================================================================
	// RPC
	// ========================================================================
	AttrRPCSystem     = "rpc.system"
	AttrRPCService    = "rpc.service"
	AttrRPCMethod     = "rpc.method"
	AttrRPCStatusCode = "rpc.grpc.status_code"
	AttrClientAddr    = "client.address"
	AttrRequestID     = "resolvd.request_id"
	AttrSubject       = "enduser.id"

	// ========================================================================
	// Export sessions
	// ========================================================================
	AttrExportHandle = "resolvd.export.handle"
	AttrExportKind   = "resolvd.export.kind"
	AttrExportLines  = "resolvd.export.lines"

	// ========================================================================
	// Engine
	// ========================================================================
	AttrOperation  = "resolvd.operation"
	AttrDataSource = "resolvd.data_source"
	AttrRecordID   = "resolvd.record_id"
	AttrEntityID   = "resolvd.entity_id"

	// ========================================================================
	// Failures and lifecycle
	// ========================================================================
	AttrErrorReason    = "resolvd.error.reason"
	AttrLifecycleState = "resolvd.lifecycle.state"
)

// Span names for internal operations. RPC spans are named after the method.
const (
	SpanExportOpen  = "export.open"
	SpanExportFetch = "export.fetch"
	SpanExportClose = "export.close"
	SpanDestroy     = "lifecycle.destroy"
)

// SplitMethod splits a gRPC full method "/pkg.Service/Method".
func SplitMethod(fullMethod string) (service, method string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// StartRPCSpan starts a server span for a gRPC call.
func StartRPCSpan(ctx context.Context, fullMethod string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	service, method := SplitMethod(fullMethod)
	base := []attribute.KeyValue{
		attribute.String(AttrRPCSystem, "grpc"),
		attribute.String(AttrRPCService, service),
		attribute.String(AttrRPCMethod, method),
	}
	return StartSpan(ctx, strings.TrimPrefix(fullMethod, "/"),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(append(base, attrs...)...),
	)
}

// StartInternalSpan starts a span for an internal operation.
func StartInternalSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RPCStatusCode returns the gRPC status code attribute.
func RPCStatusCode(code uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCStatusCode, int64(code))
}

// ClientAddr returns an attribute for the caller address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// RequestID returns an attribute for the request id.
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// Subject returns an attribute for the authenticated token subject.
func Subject(sub string) attribute.KeyValue {
	return attribute.String(AttrSubject, sub)
}

// ExportHandle returns an attribute for an export session handle.
func ExportHandle(h int64) attribute.KeyValue {
	return attribute.Int64(AttrExportHandle, h)
}

// ExportKind returns an attribute for an export report kind.
func ExportKind(kind string) attribute.KeyValue {
	return attribute.String(AttrExportKind, kind)
}

// ExportLines returns an attribute for the number of lines delivered.
func ExportLines(n int) attribute.KeyValue {
	return attribute.Int(AttrExportLines, n)
}

// Operation returns an attribute for an engine operation.
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// DataSource returns an attribute for a data source code.
func DataSource(code string) attribute.KeyValue {
	return attribute.String(AttrDataSource, code)
}

// RecordID returns an attribute for a record id.
func RecordID(id string) attribute.KeyValue {
	return attribute.String(AttrRecordID, id)
}

// EntityID returns an attribute for a resolved entity id.
func EntityID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrEntityID, id)
}

// ErrorReason returns an attribute for an encoded failure reason.
func ErrorReason(reason string) attribute.KeyValue {
	return attribute.String(AttrErrorReason, reason)
}

// LifecycleState returns an attribute for the environment state.
func LifecycleState(state string) attribute.KeyValue {
	return attribute.String(AttrLifecycleState, state)
}
