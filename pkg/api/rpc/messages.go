package rpc

import (
	"github.com/marmos91/resolvd/pkg/engine"
)

// Empty is the request or response of calls without a payload.
type Empty struct{}

// GetEntityByIDRequest looks up an entity by id.
type GetEntityByIDRequest struct {
	EntityID int64 `json:"entity_id"`
}

// SearchRequest searches entities by attribute values.
type SearchRequest struct {
	Attributes map[string]string `json:"attributes"`
}

// SearchResponse lists matching entities, ordered by id.
type SearchResponse struct {
	Entities []engine.Entity `json:"entities"`
}

// WhyRequest compares two records.
type WhyRequest struct {
	Left  engine.RecordKey `json:"left"`
	Right engine.RecordKey `json:"right"`
}

// RegisterDataSourceRequest adds a data source.
type RegisterDataSourceRequest struct {
	Code string `json:"code"`
}

// ReplaceConfigRequest swaps the data source set when ExpectedVersion is
// current.
type ReplaceConfigRequest struct {
	ExpectedVersion int64    `json:"expected_version"`
	DataSources     []string `json:"data_sources"`
}

// VersionResponse describes the server and engine builds.
type VersionResponse struct {
	Server string             `json:"server"`
	Engine engine.VersionInfo `json:"engine"`
}

// ExportCSVRequest opens a delimited report. Empty Columns selects the default
// columns.
type ExportCSVRequest struct {
	Columns []string `json:"columns,omitempty"`
}

// ExportJSONRequest opens a structured report.
type ExportJSONRequest struct{}

// ExportHandle identifies an export session.
type ExportHandle struct {
	Handle int64 `json:"handle"`
}

// FetchNextResponse carries one report line. EOF is set, with an empty Line,
// once the report is exhausted.
type FetchNextResponse struct {
	Line string `json:"line"`
	EOF  bool   `json:"eof"`
}

// ExportLine is one message of a streamed report.
type ExportLine struct {
	Line string `json:"line"`
}
