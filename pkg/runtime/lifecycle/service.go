package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the graceful RPC drain.
const DefaultShutdownTimeout = 30 * time.Second

// Server is any component with a blocking Start and an idempotent Stop.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Port() int
}

// Environment is torn down after the RPC server has stopped.
type Environment interface {
	Destroy() error
}

// Service orchestrates server startup and ordered shutdown.
type Service struct {
	shutdownTimeout time.Duration
	environment     Environment

	rpcServer     Server
	apiServer     Server
	metricsServer Server

	serveOnce sync.Once
	served    bool
}

// New creates a lifecycle service that destroys env on shutdown.
func New(shutdownTimeout time.Duration, env Environment) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Service{shutdownTimeout: shutdownTimeout, environment: env}
}

// SetRPCServer sets the RPC server. Must be called before Serve.
func (s *Service) SetRPCServer(server Server) {
	s.mustNotBeServing("RPC")
	s.rpcServer = server
}

// SetAPIServer sets the admin API server. Must be called before Serve.
func (s *Service) SetAPIServer(server Server) {
	s.mustNotBeServing("API")
	s.apiServer = server
}

// SetMetricsServer sets the metrics server. Must be called before Serve.
func (s *Service) SetMetricsServer(server Server) {
	s.mustNotBeServing("metrics")
	s.metricsServer = server
}

func (s *Service) mustNotBeServing(name string) {
	if s.served {
		panic("cannot set " + name + " server after Serve() has been called")
	}
}

// Serve starts every configured server and blocks until ctx is cancelled or a
// server fails, then shuts down. A shutdown caused by ctx returns nil.
// Serve runs at most once; later calls return immediately.
func (s *Service) Serve(ctx context.Context) error {
	err := errors.New("lifecycle: Serve already called")
	s.serveOnce.Do(func() {
		s.served = true
		err = s.serve(ctx)
	})
	return err
}

type running struct {
	name   string
	server Server
	cancel context.CancelFunc
}

func (s *Service) serve(ctx context.Context) error {
	if s.rpcServer == nil {
		return errors.New("lifecycle: no RPC server configured")
	}
	logger.Info("Starting resolvd runtime")

	g, gctx := errgroup.WithContext(ctx)
	servers := map[string]*running{}
	start := func(name string, server Server) {
		if server == nil {
			return
		}
		// Each server gets its own context so shutdown can stop them one
		// at a time.
		sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		servers[name] = &running{name: name, server: server, cancel: cancel}
		g.Go(func() error {
			if err := server.Start(sctx); err != nil {
				logger.Error("Server failed", logger.KeyComponent, name, logger.KeyError, err)
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}

	start("metrics", s.metricsServer)
	start("rpc", s.rpcServer)
	start("api", s.apiServer)

	<-gctx.Done()
	if ctx.Err() != nil {
		logger.Info("Shutdown signal received", "reason", context.Cause(ctx))
	} else {
		logger.Error("Server failed - initiating shutdown")
	}

	shutdownErr := s.shutdown(servers)
	serverErr := g.Wait()

	logger.Info("resolvd runtime stopped")
	return errors.Join(serverErr, shutdownErr)
}

// shutdown stops the servers and the environment in the package order.
func (s *Service) shutdown(servers map[string]*running) error {
	var errs []error

	stop := func(name string, timeout time.Duration) {
		r, ok := servers[name]
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		logger.Debug("Stopping server", logger.KeyComponent, name)
		if err := r.server.Stop(ctx); err != nil {
			logger.Warn("Server shutdown error", logger.KeyComponent, name, logger.KeyError, err)
			errs = append(errs, fmt.Errorf("stop %s server: %w", name, err))
		}
		r.cancel()
	}

	stop("api", 5*time.Second)
	stop("rpc", s.shutdownTimeout)

	if s.environment != nil {
		logger.Info("Destroying runtime environment")
		if err := s.environment.Destroy(); err != nil {
			logger.Error("Runtime environment teardown failed", logger.KeyError, err)
			errs = append(errs, fmt.Errorf("destroy environment: %w", err))
		}
	}

	stop("metrics", 5*time.Second)
	return errors.Join(errs...)
}
