package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/marmos91/resolvd/pkg/runtime"
)

// SessionsResponse is the body of GET /api/v1/sessions.
type SessionsResponse struct {
	Sessions []export.SessionInfo `json:"sessions"`
}

// SessionHandler lists and closes export sessions.
type SessionHandler struct {
	registry *runtime.Registry
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(registry *runtime.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	env, ok := currentEnvironment(w, h.registry)
	if !ok {
		return
	}
	WriteJSONOK(w, SessionsResponse{Sessions: env.Exports().List()})
}

// Close handles DELETE /api/v1/sessions/{handle}.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	handle, err := strconv.ParseInt(chi.URLParam(r, "handle"), 10, 64)
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "Bad Request", "handle must be an integer")
		return
	}
	env, ok := currentEnvironment(w, h.registry)
	if !ok {
		return
	}
	if err := env.Exports().Close(r.Context(), handle); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
