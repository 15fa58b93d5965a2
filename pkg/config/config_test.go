package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/resolvd/internal/bytesize"
	"github.com/marmos91/resolvd/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// ============================================================================
// Defaults
// ============================================================================

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 7060, cfg.RPC.Port)
	assert.Equal(t, 4*bytesize.MiB, cfg.RPC.MaxMessageSize)
	assert.Equal(t, 7061, cfg.API.Port)
	assert.True(t, cfg.API.IsEnabled())
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Errors.IncludeStackTrace())
	assert.Equal(t, []string{"EMAIL", "PHONE", "SSN"}, cfg.Engine.MatchFeatures)
	assert.NotEmpty(t, cfg.Engine.Path)
	assert.Equal(t, "resolvd", cfg.Telemetry.ServiceName)

	require.NoError(t, Validate(cfg))
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:         logger.Config{Level: "debug", Format: "json"},
		ShutdownTimeout: 5 * time.Second,
		Metrics:         MetricsConfig{Enabled: true},
	}
	cfg.RPC.Port = 9000
	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 9000, cfg.RPC.Port)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

// ============================================================================
// Load
// ============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7060, cfg.RPC.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
logging:
  level: warn
shutdown_timeout: 10s
engine:
  in_memory: true
  data_sources: [CUSTOMERS, WATCHLIST]
  block_cache_size: 64Mi
rpc:
  port: 7100
  max_message_size: 8Mi
  rate_limit:
    enabled: true
    requests_per_second: 50
api:
  enabled: false
errors:
  stack_trace: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Engine.InMemory)
	assert.Equal(t, []string{"CUSTOMERS", "WATCHLIST"}, cfg.Engine.DataSources)
	assert.Equal(t, 7100, cfg.RPC.Port)
	assert.Equal(t, 8*bytesize.MiB, cfg.RPC.MaxMessageSize)
	assert.Equal(t, 64*bytesize.MiB, cfg.Engine.BlockCacheSize)
	assert.Equal(t, 50, cfg.RPC.RateLimit.Burst)
	assert.False(t, cfg.API.IsEnabled())
	assert.False(t, cfg.Errors.IncludeStackTrace())
	assert.Equal(t, 24*time.Hour, cfg.RPC.Auth.TokenDuration)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "rpc:\n  port: 7100\n")
	t.Setenv("RESOLVD_RPC_PORT", "7200")
	t.Setenv("RESOLVD_LOGGING_LEVEL", "error")
	t.Setenv("RESOLVD_ENGINE_DATA_SOURCES", "A,B")
	t.Setenv("RESOLVD_RPC_MAX_MESSAGE_SIZE", "16777216")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7200, cfg.RPC.Port)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, []string{"A", "B"}, cfg.Engine.DataSources)
	assert.Equal(t, 16*bytesize.MiB, cfg.RPC.MaxMessageSize)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "rpc: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMustLoad_MissingFileExplainsInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := MustLoad(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolvd init --config "+path)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.RPC.Port = 7300
	cfg.Engine.DataSources = []string{"CUSTOMERS"}

	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7300, loaded.RPC.Port)
	assert.Equal(t, cfg.ShutdownTimeout, loaded.ShutdownTimeout)
	assert.Equal(t, cfg.RPC.MaxMessageSize, loaded.RPC.MaxMessageSize)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "max_message_size: 4Mi")
	assert.Equal(t, []string{"CUSTOMERS"}, loaded.Engine.DataSources)
}

func TestGetConfigDir_HonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "resolvd"), GetConfigDir())
	assert.Equal(t, filepath.Join(dir, "resolvd", "config.yaml"), GetDefaultConfigPath())
	assert.False(t, DefaultConfigExists())
}

// ============================================================================
// Validation
// ============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "LOUD" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
		{"rpc port out of range", func(c *Config) { c.RPC.Port = 70000 }, "rpc.port"},
		{"lowercase data source", func(c *Config) { c.Engine.DataSources = []string{"customers"} }, "engine.data_sources"},
		{"no path on disk", func(c *Config) { c.Engine.Path = "" }, "engine.path"},
		{"short auth secret", func(c *Config) {
			c.RPC.Auth.Enabled = true
			c.RPC.Auth.Secret = "short"
		}, "rpc.auth.secret"},
		{"port clash", func(c *Config) { c.API.Port = c.RPC.Port }, "api.port"},
		{"unknown profile type", func(c *Config) {
			c.Telemetry.Profiling.Enabled = true
			c.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heat"}
		}, "profile_types"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, Validate(nil))
}

// ============================================================================
// Watch
// ============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		levels []string
	)
	require.NoError(t, Watch(ctx, path, func(cfg *Config) {
		mu.Lock()
		levels = append(levels, cfg.Logging.Level)
		mu.Unlock()
	}))

	// Invalid content is skipped.
	writeConfig(t, dir, "logging:\n  level: LOUD\n")
	time.Sleep(2 * reloadDebounce)
	writeConfig(t, dir, "logging:\n  level: debug\n")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0 && levels[len(levels)-1] == "DEBUG"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.NotContains(t, levels, "LOUD")
	mu.Unlock()
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "gone", "config.yaml"), func(*Config) {})
	assert.Error(t, err)
}
