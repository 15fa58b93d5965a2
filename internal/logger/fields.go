package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging. Use these consistently so log
// lines can be aggregated and queried across the RPC, export and lifecycle
// layers.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// RPC
	// ========================================================================
	KeyMethod    = "method"     // Full gRPC method name
	KeyPeer      = "peer"       // Remote address of the caller
	KeyRequestID = "request_id" // Per-call request identifier
	KeyCode      = "code"       // gRPC status code
	KeyReason    = "reason"     // Encoded failure reason
	KeySubject   = "subject"    // Authenticated token subject

	// ========================================================================
	// Export Sessions
	// ========================================================================
	KeyHandle = "handle" // Export session handle
	KeyKind   = "kind"   // Export kind: csv, json
	KeyLines  = "lines"  // Lines delivered
	KeyOpen   = "open"   // Open sessions
	KeyClosed = "closed" // Sessions closed at teardown

	// ========================================================================
	// Engine
	// ========================================================================
	KeyOperation  = "operation"   // Engine operation name
	KeyDataSource = "data_source" // Data source code
	KeyRecordID   = "record_id"   // Record identifier within a data source
	KeyEntityID   = "entity_id"   // Resolved entity identifier
	KeyPath       = "path"        // On-disk location
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Lifecycle
	// ========================================================================
	KeyState    = "state"     // Lifecycle state: active, destroying, destroyed
	KeyInFlight = "in_flight" // Admitted operations still running

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyPort       = "port"        // Listening port
	KeyComponent  = "component"   // Server or subsystem name
)

// ============================================================================
// Field constructors
// ============================================================================

// Method returns a slog.Attr for the RPC method name
func Method(name string) slog.Attr {
	return slog.String(KeyMethod, name)
}

// Handle returns a slog.Attr for an export session handle
func Handle(h int64) slog.Attr {
	return slog.Int64(KeyHandle, h)
}

// Code returns a slog.Attr for a status code name
func Code(code string) slog.Attr {
	return slog.String(KeyCode, code)
}

// Err returns a slog.Attr for an error, or an empty attr for nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for the elapsed time since start
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}
