package config

import (
	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/pkg/config"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the resolvd configuration after defaults and environment
overrides are applied.

By default outputs YAML format. Use --output to change format. The RPC auth
secret is masked.

Examples:
  resolvd config show
  resolvd config show --output json
  RESOLVD_RPC_PORT=7070 resolvd config show`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}
	if cfg.RPC.Auth.Secret != "" {
		cfg.RPC.Auth.Secret = "********"
	}

	// The root --output flag defaults to table; show YAML unless JSON was
	// asked for.
	format, err := output.ParseFormat(cmd.Flag("output").Value.String())
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
