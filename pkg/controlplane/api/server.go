package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/runtime"
)

// Server serves the admin API over HTTP.
//
// Endpoints:
//   - GET /health: Liveness check
//   - GET /health/ready: Readiness check
//   - GET /api/v1/status: Runtime status
//   - GET /api/v1/sessions: Open export sessions
type Server struct {
	server       *http.Server
	config       APIConfig
	port         int
	ready        chan struct{}
	shutdownOnce sync.Once
}

// NewServer creates a stopped admin server. Call Start to begin serving.
func NewServer(config APIConfig, registry *runtime.Registry) *Server {
	config.ApplyDefaults()

	return &Server{
		config: config,
		port:   config.Port,
		ready:  make(chan struct{}),
		server: &http.Server{
			Handler:           NewRouter(registry),
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
	}
}

// Start serves until ctx is cancelled or the listener fails. Cancellation
// shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("API server listen: %w", err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", logger.KeyPort, s.port)
		logger.Debug("API endpoints available",
			"health", fmt.Sprintf("http://localhost:%d/health", s.port),
			"status", fmt.Sprintf("http://localhost:%d/api/v1/status", s.port),
		)

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once and concurrently
// with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.KeyError, err)
			return
		}
		logger.Info("API server stopped gracefully")
	})
	return shutdownErr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Port returns the listening port. It is only final after Ready.
func (s *Server) Port() int { return s.port }
