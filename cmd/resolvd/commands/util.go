package commands

import (
	"fmt"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if path := resolvedConfigPath(configFile); path != "" {
		return path
	}
	return "defaults"
}

// resolvedConfigPath returns the file MustLoad read, or "" when none exists.
func resolvedConfigPath(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
