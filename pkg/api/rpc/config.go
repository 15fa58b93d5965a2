package rpc

import (
	"os"
	"time"

	"github.com/marmos91/resolvd/internal/bytesize"
	"github.com/marmos91/resolvd/internal/logger"
)

// EnvAuthSecret overrides Config.Auth.Secret.
const EnvAuthSecret = "RESOLVD_RPC_AUTH_SECRET"

// Config configures the RPC server.
type Config struct {
	// Port is the TCP port. 0 picks a free port.
	// Default: 7060
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxMessageSize bounds request and response messages. Accepts sizes
	// like "4Mi" or plain byte counts.
	// Default: 4Mi
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size" validate:"omitempty,min=1024,max=2147483647"`

	// RateLimit throttles calls across all clients.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// Auth requires bearer tokens on every call.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// RateLimitConfig configures the token bucket in front of the service.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// RequestsPerSecond is the sustained call rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"required_if=Enabled true,omitempty,gt=0"`

	// Burst is the bucket size.
	Burst int `mapstructure:"burst" yaml:"burst" validate:"omitempty,min=1"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Secret is the HMAC signing key, at least 32 characters. Can also be set
	// via RESOLVD_RPC_AUTH_SECRET, which takes precedence.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Issuer is the expected iss claim.
	// Default: resolvd
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// TokenDuration is the lifetime of tokens minted by `resolvd token`.
	// Default: 24h
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 7060
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 4 * bytesize.MiB
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond)
		if c.RateLimit.Burst < 1 {
			c.RateLimit.Burst = 1
		}
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "resolvd"
	}
	if c.Auth.TokenDuration == 0 {
		c.Auth.TokenDuration = 24 * time.Hour
	}
}

// GetSecret returns the signing secret, preferring the environment variable.
func (c *AuthConfig) GetSecret() string {
	if env := os.Getenv(EnvAuthSecret); env != "" {
		if c.Secret != "" && c.Secret != env {
			logger.Warn("RPC auth secret from environment variable overrides config file value",
				"env_var", EnvAuthSecret)
		}
		return env
	}
	return c.Secret
}
