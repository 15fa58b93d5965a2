package commands

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/resolvd/internal/cli/prompt"
	"github.com/marmos91/resolvd/pkg/api/rpc"
	"github.com/marmos91/resolvd/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initInteractive bool
	initAuth        bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a resolvd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/resolvd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with defaults
  resolvd init

  # Answer a few questions first
  resolvd init --interactive

  # Require bearer tokens on the RPC service
  resolvd init --auth

  # Force overwrite existing config
  resolvd init --force --config /etc/resolvd/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
	initCmd.Flags().BoolVar(&initAuth, "auth", false, "Enable RPC token authentication with a generated secret")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s", configPath), initForce)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("aborted: configuration file already exists")
		}
	}

	cfg := config.GetDefaultConfig()
	if initInteractive {
		if err := promptSettings(cfg); err != nil {
			return err
		}
	}
	if initAuth {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		cfg.RPC.Auth.Enabled = true
		cfg.RPC.Auth.Secret = secret
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintf(out, "  2. Start the server with: resolvd start --config %s\n", configPath)
	if cfg.RPC.Auth.Enabled {
		_, _ = fmt.Fprintln(out, "\nSecurity note:")
		_, _ = fmt.Fprintln(out, "  A random signing secret has been written to the file.")
		_, _ = fmt.Fprintln(out, "  For production, keep it out of the file and use an environment variable:")
		_, _ = fmt.Fprintf(out, "    export %s=$(openssl rand -hex 32)\n", rpc.EnvAuthSecret)
		_, _ = fmt.Fprintln(out, "  Then mint client tokens with: resolvd token --scope write --save")
	}
	return nil
}

func promptSettings(cfg *config.Config) error {
	sources, err := prompt.Input("Data sources (comma separated)", strings.Join(cfg.Engine.DataSources, ","))
	if err != nil {
		return err
	}
	cfg.Engine.DataSources = splitList(strings.ToUpper(sources))

	if cfg.RPC.Port, err = prompt.InputPort("RPC port", cfg.RPC.Port); err != nil {
		return err
	}
	if cfg.API.Port, err = prompt.InputPort("Admin API port", cfg.API.Port); err != nil {
		return err
	}
	if cfg.Logging.Format, err = prompt.SelectString("Log format", []string{"text", "json"}); err != nil {
		return err
	}

	if !initAuth {
		if initAuth, err = prompt.Confirm("Require RPC bearer tokens", false); err != nil {
			return err
		}
	}
	return nil
}

// generateSecret returns 32 random bytes, hex encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
