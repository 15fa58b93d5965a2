package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/controlplane/api/handlers"
	"github.com/marmos91/resolvd/pkg/runtime"
)

// NewRouter creates the chi router of the admin API.
//
// Routes:
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//   - GET /api/v1/status - Environment, engine and process status
//   - GET /api/v1/sessions - Open export sessions
//   - DELETE /api/v1/sessions/{handle} - Close an export session
func NewRouter(registry *runtime.Registry) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(registry)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	statusHandler := handlers.NewStatusHandler(registry)
	sessionHandler := handlers.NewSessionHandler(registry)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Get)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Delete("/{handle}", sessionHandler.Close)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.NotFound(w, "no route for "+r.URL.Path)
	})

	return r
}

// requestLogger logs every request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("API request completed",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
