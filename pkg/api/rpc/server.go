package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/api/auth"
	"github.com/marmos91/resolvd/pkg/classifier"
	"github.com/marmos91/resolvd/pkg/metrics"
	"github.com/marmos91/resolvd/pkg/runtime"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

// Server serves the Engine service over gRPC.
//
// Every call passes through the interceptor chain in interceptors.go, then
// resolves the current runtime environment and runs under its admission gate.
// A destroy in progress therefore fails new calls with FAILED_PRECONDITION
// while calls already admitted complete normally.
type Server struct {
	config   Config
	grpc     *grpc.Server
	metrics  metrics.RPCMetrics
	limiter  *rate.Limiter
	tokens   *auth.Service
	encoder  *classifier.Classifier
	version  string
	listener net.Listener

	port     int
	ready    chan struct{}
	stopOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records call outcomes. A nil value disables recording.
func WithMetrics(m metrics.RPCMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the server version reported by GetVersion.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithClassifier encodes handler failures with c instead of classifier.Default.
func WithClassifier(c *classifier.Classifier) Option {
	return func(s *Server) { s.encoder = c }
}

// WithListener serves on ln instead of binding Config.Port.
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.listener = ln }
}

// NewServer creates a stopped server. Call Start to begin serving.
func NewServer(config Config, registry *runtime.Registry, opts ...Option) (*Server, error) {
	config.ApplyDefaults()

	s := &Server{
		config:  config,
		version: "dev",
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.encoder == nil {
		s.encoder = classifier.Default
	}

	if config.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit.RequestsPerSecond), config.RateLimit.Burst)
	}
	if config.Auth.Enabled {
		tokens, err := auth.NewService(auth.Config{
			Secret:        config.Auth.GetSecret(),
			Issuer:        config.Auth.Issuer,
			TokenDuration: config.Auth.TokenDuration,
		})
		if err != nil {
			return nil, fmt.Errorf("rpc auth: %w", err)
		}
		s.tokens = tokens
	}

	s.grpc = grpc.NewServer(
		grpc.MaxRecvMsgSize(int(config.MaxMessageSize)),
		grpc.MaxSendMsgSize(int(config.MaxMessageSize)),
		grpc.ChainUnaryInterceptor(s.unaryInterceptors()...),
		grpc.ChainStreamInterceptor(s.streamInterceptors()...),
	)
	RegisterEngineServer(s.grpc, newService(registry, s.version))
	return s, nil
}

// Start serves until ctx is cancelled or the listener fails. Cancellation
// stops the server gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
		if err != nil {
			return fmt.Errorf("rpc server listen: %w", err)
		}
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("RPC server listening", logger.KeyPort, s.port, "max_message_size", s.config.MaxMessageSize.String(),
			"rate_limit", s.limiter != nil, "auth", s.tokens != nil)
		if err := s.grpc.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("rpc server failed: %w", err)
	}
}

// Stop drains in-flight calls until ctx expires, then closes every
// connection. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("RPC server stopped gracefully")
		case <-ctx.Done():
			s.grpc.Stop()
			<-done
			stopErr = fmt.Errorf("rpc server shutdown: %w", ctx.Err())
			logger.Warn("RPC server forced to stop", logger.KeyError, ctx.Err())
		}
	})
	return stopErr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Port returns the listening TCP port. It is only final after Ready, and 0
// for non-TCP listeners.
func (s *Server) Port() int { return s.port }
