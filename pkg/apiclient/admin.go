package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/export"
)

// Health is the body of the health endpoints.
type Health struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Liveness is the data of GET /health.
type Liveness struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_sec"`
}

// Status is the body of GET /api/v1/status.
type Status struct {
	State        string             `json:"state"`
	InFlight     int                `json:"in_flight"`
	OpenSessions int                `json:"open_sessions"`
	CreatedAt    time.Time          `json:"created_at"`
	Engine       engine.VersionInfo `json:"engine"`
	Stats        *engine.Stats      `json:"stats,omitempty"`
	StatsError   string             `json:"stats_error,omitempty"`
	Process      struct {
		PID              int32   `json:"pid"`
		RSSBytes         uint64  `json:"rss_bytes"`
		CPUPercent       float64 `json:"cpu_percent"`
		Goroutines       int     `json:"goroutines"`
		SystemMemoryUsed float64 `json:"system_memory_used_percent"`
	} `json:"process"`
}

// Liveness calls GET /health.
func (c *Client) Liveness(ctx context.Context) (*Liveness, error) {
	var h Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	var l Liveness
	if len(h.Data) > 0 {
		if err := json.Unmarshal(h.Data, &l); err != nil {
			return nil, fmt.Errorf("failed to decode health data: %w", err)
		}
	}
	return &l, nil
}

// Ready calls GET /health/ready. A not ready server returns an *APIError
// whose Detail carries the unhealthy reason.
func (c *Client) Ready(ctx context.Context) error {
	var h Health
	err := c.get(ctx, "/health/ready", &h)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable {
		var body Health
		if json.Unmarshal([]byte(apiErr.Detail), &body) == nil && body.Error != "" {
			apiErr.Detail = body.Error
		}
	}
	return err
}

// Status calls GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Sessions calls GET /api/v1/sessions.
func (c *Client) Sessions(ctx context.Context) ([]export.SessionInfo, error) {
	var resp struct {
		Sessions []export.SessionInfo `json:"sessions"`
	}
	if err := c.get(ctx, "/api/v1/sessions", &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CloseSession calls DELETE /api/v1/sessions/{handle}.
func (c *Client) CloseSession(ctx context.Context, handle int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/v1/sessions/%d", handle), nil)
}
