package config

import (
	"fmt"
	"strconv"

	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the resolvd configuration file.

Checks for syntax errors, invalid values and conflicting settings such as
two servers on one port.

Examples:
  resolvd config validate
  resolvd config validate --config /etc/resolvd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if !cfg.RPC.Auth.Enabled {
		warnings = append(warnings, "RPC authentication disabled - any client may add and delete records")
	}
	if cfg.Engine.InMemory {
		warnings = append(warnings, "Engine runs in memory - data is lost on restart")
	}
	if len(cfg.Engine.DataSources) == 0 {
		warnings = append(warnings, "No data sources configured - register them before adding records")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	summary := [][2]string{
		{"Engine path", cfg.Engine.Path},
		{"RPC port", strconv.Itoa(cfg.RPC.Port)},
	}
	if cfg.API.IsEnabled() {
		summary = append(summary, [2]string{"Admin API port", strconv.Itoa(cfg.API.Port)})
	}
	if cfg.Metrics.Enabled {
		summary = append(summary, [2]string{"Metrics port", strconv.Itoa(cfg.Metrics.Port)})
	}
	summary = append(summary, [2]string{"Log level", cfg.Logging.Level})

	return output.SimpleTable(out, summary)
}
