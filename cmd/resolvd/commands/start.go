package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/internal/telemetry"
	"github.com/marmos91/resolvd/pkg/api/rpc"
	"github.com/marmos91/resolvd/pkg/classifier"
	"github.com/marmos91/resolvd/pkg/config"
	"github.com/marmos91/resolvd/pkg/controlplane/api"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/engine/badger"
	"github.com/marmos91/resolvd/pkg/metrics"
	"github.com/marmos91/resolvd/pkg/runtime"
	"github.com/marmos91/resolvd/pkg/runtime/lifecycle"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/resolvd/pkg/metrics/prometheus"
)

var startNoWatch bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the resolvd server",
	Long: `Start the resolvd server in the foreground.

The engine environment is initialized before any listener opens. On SIGINT
or SIGTERM the admin API stops first, then the RPC server drains, then the
environment is destroyed (closing open export sessions), and finally the
metrics server stops.

Log level and format are reloaded when the configuration file changes.
Every other setting requires a restart.

Examples:
  # Start with default config location
  resolvd start

  # Start with custom config file
  resolvd start --config /etc/resolvd/config.yaml

  # Start with environment variable overrides
  RESOLVD_LOGGING_LEVEL=DEBUG RESOLVD_RPC_PORT=7070 resolvd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startNoWatch, "no-watch", false, "Do not reload settings when the config file changes")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceVersion = Version
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := cfg.Telemetry.Profiling
	profilingCfg.ServiceVersion = Version
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("resolvd starting", "version", Version, "commit", Commit)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// Metrics must be enabled before any component asks for its collectors.
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	errorClassifier := classifier.New(
		classifier.WithStackTrace(cfg.Errors.IncludeStackTrace()),
		classifier.WithPassThrough(cfg.Errors.PassThrough...),
	)

	engineCfg := cfg.Engine
	registry := runtime.NewRegistry(
		func(ctx context.Context) (engine.Handle, error) {
			return badger.Open(ctx, engineCfg, Version, badger.WithMetrics(metrics.NewEngineMetrics()))
		},
		runtime.WithPollInterval(cfg.Admission.PollInterval),
		runtime.WithGateMetrics(metrics.NewGateMetrics()),
		runtime.WithExportMetrics(metrics.NewExportMetrics()),
	)

	env, err := registry.Init(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	st := env.Status()
	logger.Info("Engine initialized",
		"product", st.Engine.Product,
		"version", st.Engine.Version,
		"path", engineCfg.Path,
		"in_memory", engineCfg.InMemory)

	rpcServer, err := rpc.NewServer(cfg.RPC, registry,
		rpc.WithMetrics(metrics.NewRPCMetrics()),
		rpc.WithVersion(Version),
		rpc.WithClassifier(errorClassifier),
	)
	if err != nil {
		_ = registry.Destroy()
		return fmt.Errorf("failed to create RPC server: %w", err)
	}

	svc := lifecycle.New(cfg.ShutdownTimeout, registry)
	svc.SetRPCServer(rpcServer)
	logger.Info("RPC server enabled", "port", cfg.RPC.Port, "auth", cfg.RPC.Auth.Enabled, "rate_limit", cfg.RPC.RateLimit.Enabled)

	if cfg.API.IsEnabled() {
		svc.SetAPIServer(api.NewServer(cfg.API, registry))
		logger.Info("Admin API enabled", "port", cfg.API.Port)
	} else {
		logger.Info("Admin API disabled")
	}
	if metricsServer != nil {
		svc.SetMetricsServer(metricsServer)
	}

	if configPath := resolvedConfigPath(GetConfigFile()); configPath != "" && !startNoWatch {
		if err := config.Watch(ctx, configPath, config.ApplyRuntime); err != nil {
			logger.Warn("Config hot reload disabled", logger.KeyError, err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := svc.Serve(ctx); err != nil {
		logger.Error("Server stopped with error", logger.KeyError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
