// Package engine defines the contract of the entity resolution backend.
//
// The service never owns more than one backend per process. Callers receive an
// Engine, a read-only facade that cannot tear the backend down; the runtime
// registry alone holds the Handle that adds Close.
package engine

import (
	"context"
	"time"
)

// ExportKind selects the shape of a bulk export report.
type ExportKind string

const (
	// ExportCSV yields a header line followed by one delimited line per
	// resolved record.
	ExportCSV ExportKind = "csv"

	// ExportJSON yields one JSON document per resolved entity.
	ExportJSON ExportKind = "json"
)

// DefaultCSVColumns are the columns emitted by ExportCSV when none are given.
var DefaultCSVColumns = []string{"RESOLVED_ENTITY_ID", "DATA_SOURCE", "RECORD_ID"}

// Record is a single source record submitted for resolution.
type Record struct {
	DataSource string            `json:"data_source"`
	RecordID   string            `json:"record_id"`
	Attributes map[string]string `json:"attributes"`
}

// RecordKey identifies a record within a data source.
type RecordKey struct {
	DataSource string `json:"data_source"`
	RecordID   string `json:"record_id"`
}

// EntityRef is returned when a record is added.
type EntityRef struct {
	EntityID int64 `json:"entity_id"`
	Created  bool  `json:"created"`
}

// Entity is a resolved entity and the records that resolved to it.
type Entity struct {
	EntityID int64       `json:"entity_id"`
	Records  []RecordKey `json:"records"`
}

// WhyResult explains the relationship between two records.
type WhyResult struct {
	Left           RecordKey         `json:"left"`
	Right          RecordKey         `json:"right"`
	SameEntity     bool              `json:"same_entity"`
	SharedFeatures map[string]string `json:"shared_features"`
}

// Stats summarizes repository contents.
type Stats struct {
	Records     int64            `json:"records"`
	Entities    int64            `json:"entities"`
	DataSources map[string]int64 `json:"data_sources"`
}

// DataSourceConfig is the versioned set of registered data sources.
type DataSourceConfig struct {
	Version     int64    `json:"version"`
	DataSources []string `json:"data_sources"`
}

// VersionInfo describes the backend build.
type VersionInfo struct {
	Product   string    `json:"product"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Iterator is a lazily evaluated sequence of report lines.
//
// Next returns io.EOF once the sequence is exhausted. Iterators are not safe
// for concurrent use. Close releases backend resources and may be called at
// any point, including before exhaustion.
type Iterator interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Engine is the read-only facade over the backend. Every method may fail with
// an *errors.Error from pkg/engine/errors.
type Engine interface {
	AddRecord(ctx context.Context, rec Record) (EntityRef, error)
	GetRecord(ctx context.Context, key RecordKey) (Record, error)
	DeleteRecord(ctx context.Context, key RecordKey) error

	GetEntityByRecordID(ctx context.Context, key RecordKey) (Entity, error)
	GetEntityByID(ctx context.Context, entityID int64) (Entity, error)
	SearchByAttributes(ctx context.Context, attrs map[string]string) ([]Entity, error)
	WhyRecords(ctx context.Context, left, right RecordKey) (WhyResult, error)

	// ExportCSV starts a delimited report. Nil columns selects DefaultCSVColumns.
	ExportCSV(ctx context.Context, columns []string) (Iterator, error)
	// ExportJSON starts a structured report.
	ExportJSON(ctx context.Context) (Iterator, error)

	ListDataSources(ctx context.Context) (DataSourceConfig, error)
	RegisterDataSource(ctx context.Context, code string) (DataSourceConfig, error)
	// ReplaceConfig swaps the data source set if expectedVersion is current.
	ReplaceConfig(ctx context.Context, expectedVersion int64, dataSources []string) (DataSourceConfig, error)

	Stats(ctx context.Context) (Stats, error)
	Version() VersionInfo

	// Healthcheck reports whether the backend can serve reads.
	Healthcheck(ctx context.Context) error
}

// Handle is the owning reference to the backend. Only the runtime registry
// holds one.
type Handle interface {
	Engine

	// Close releases the backend. Calls made after Close fail with a
	// NotInitialized error.
	Close() error
}

// Export starts a report of the given kind on e.
func Export(ctx context.Context, e Engine, kind ExportKind, columns []string) (Iterator, error) {
	switch kind {
	case ExportCSV:
		return e.ExportCSV(ctx, columns)
	case ExportJSON:
		return e.ExportJSON(ctx)
	default:
		return nil, unknownKind(kind)
	}
}

// readOnly hides every method beyond Engine, so holders of the facade cannot
// recover the Handle with a type assertion.
type readOnly struct {
	Engine
}

// ReadOnly wraps e in a facade that exposes only the Engine methods.
func ReadOnly(e Engine) Engine {
	if ro, ok := e.(readOnly); ok {
		return ro
	}
	return readOnly{Engine: e}
}
