package handlers

import (
	"context"
	"net/http"
	"os"
	goruntime "runtime"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/runtime"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats describes the server process.
type ProcessStats struct {
	PID              int32   `json:"pid"`
	RSSBytes         uint64  `json:"rss_bytes"`
	CPUPercent       float64 `json:"cpu_percent"`
	Goroutines       int     `json:"goroutines"`
	SystemMemoryUsed float64 `json:"system_memory_used_percent"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	runtime.Status
	Stats      *engine.Stats `json:"stats,omitempty"`
	StatsError string        `json:"stats_error,omitempty"`
	Process    ProcessStats  `json:"process"`
}

// StatusHandler reports the runtime environment and process state.
type StatusHandler struct {
	registry *runtime.Registry
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(registry *runtime.Registry) *StatusHandler {
	return &StatusHandler{registry: registry}
}

// Get handles GET /api/v1/status. Engine statistics are best effort: the
// environment state is still reported while the engine is being destroyed.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	env, ok := currentEnvironment(w, h.registry)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	resp := StatusResponse{
		Status:  env.Status(),
		Process: processStats(ctx),
	}
	stats, err := runtime.Call(ctx, env, func(ctx context.Context, eng engine.Engine) (engine.Stats, error) {
		return eng.Stats(ctx)
	})
	if err != nil {
		resp.StatsError = err.Error()
	} else {
		resp.Stats = &stats
	}
	WriteJSONOK(w, resp)
}

func processStats(ctx context.Context) ProcessStats {
	ps := ProcessStats{
		PID:        int32(os.Getpid()),
		Goroutines: goruntime.NumGoroutine(),
	}

	p, err := process.NewProcessWithContext(ctx, ps.PID)
	if err != nil {
		logger.Debug("Process stats unavailable", logger.KeyError, err)
		return ps
	}
	if m, err := p.MemoryInfoWithContext(ctx); err == nil {
		ps.RSSBytes = m.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		ps.CPUPercent = cpu
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		ps.SystemMemoryUsed = vm.UsedPercent
	}
	return ps
}
