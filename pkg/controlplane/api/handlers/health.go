package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/runtime"
)

// HealthCheckTimeout bounds the engine health check behind the readiness
// endpoint.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	registry  *runtime.Registry
	startTime time.Time
}

// NewHealthHandler creates a health handler. A nil registry is never ready.
func NewHealthHandler(registry *runtime.Registry) *HealthHandler {
	return &HealthHandler{
		registry:  registry,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health. It succeeds as long as the process serves
// HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, healthyResponse(map[string]any{
		"service":    "resolvd",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready. It returns 503 unless the environment
// is active and the engine passes its health check.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("registry not initialized"))
		return
	}
	env, err := h.registry.Current()
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err = env.Execute(ctx, func(ctx context.Context, eng engine.Engine) error {
		return eng.Healthcheck(ctx)
	})
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	st := env.Status()
	WriteJSONOK(w, healthyResponse(map[string]any{
		"state":         st.State,
		"open_sessions": st.OpenSessions,
		"latency":       time.Since(start).String(),
	}))
}
