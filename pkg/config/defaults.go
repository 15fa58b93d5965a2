package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/resolvd/internal/telemetry"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(cfg)
	applyTelemetryDefaults(cfg)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Admission.PollInterval == 0 {
		cfg.Admission.PollInterval = admission.DefaultPollInterval
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	cfg.Engine.ApplyDefaults()
	cfg.RPC.ApplyDefaults()
	cfg.API.ApplyDefaults()
}

func applyLoggingDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *Config) {
	def := telemetry.DefaultConfig()
	t := &cfg.Telemetry

	t.ServiceName = def.ServiceName
	t.Profiling.ServiceName = def.Profiling.ServiceName
	if t.Endpoint == "" {
		t.Endpoint = def.Endpoint
	}
	if t.SampleRate == 0 {
		t.SampleRate = def.SampleRate
	}
	if t.Profiling.Endpoint == "" {
		t.Profiling.Endpoint = def.Profiling.Endpoint
	}
	if len(t.Profiling.ProfileTypes) == 0 {
		t.Profiling.ProfileTypes = def.Profiling.ProfileTypes
	}
}

// GetDefaultConfig returns a Config with every default applied. The engine
// stores its data under the config directory.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: telemetry.DefaultConfig(),
	}
	cfg.Engine.Path = GetDefaultDataPath()
	ApplyDefaults(cfg)
	return cfg
}

// GetDefaultDataPath returns the default engine data directory.
func GetDefaultDataPath() string {
	return filepath.Join(getConfigDir(), "data")
}
