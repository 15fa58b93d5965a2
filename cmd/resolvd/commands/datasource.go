package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/pkg/api/rpc"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/spf13/cobra"
)

var datasourceCmd = &cobra.Command{
	Use:     "datasource",
	Aliases: []string{"ds"},
	Short:   "Manage data sources",
	Long: `Manage the data sources records may be loaded into.

The data source set is versioned. 'replace' only succeeds when the version
still matches, so concurrent edits cannot overwrite each other.

Examples:
  resolvd datasource list
  resolvd datasource add WATCHLIST
  resolvd datasource replace --version 3 CUSTOMERS WATCHLIST`,
}

var datasourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List data sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			cfg, err := c.ListDataSources(ctx)
			if err != nil {
				return err
			}
			return printView(p, dataSourceTable{cfg}, cfg)
		})
	},
}

var datasourceAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Register a data source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			cfg, err := c.RegisterDataSource(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return printView(p, dataSourceTable{cfg}, cfg)
		})
	},
}

var replaceVersion int64

var datasourceReplaceCmd = &cobra.Command{
	Use:   "replace <code>...",
	Short: "Replace the data source set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("version") {
			return fmt.Errorf("--version is required; see 'resolvd datasource list'")
		}
		codes := make([]string, len(args))
		for i, a := range args {
			codes[i] = strings.ToUpper(a)
		}
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			cfg, err := c.ReplaceConfig(ctx, replaceVersion, codes)
			if err != nil {
				return err
			}
			return printView(p, dataSourceTable{cfg}, cfg)
		})
	},
}

func init() {
	datasourceReplaceCmd.Flags().Int64Var(&replaceVersion, "version", 0, "Expected current configuration version")

	datasourceCmd.AddCommand(datasourceListCmd)
	datasourceCmd.AddCommand(datasourceAddCmd)
	datasourceCmd.AddCommand(datasourceReplaceCmd)
}

type dataSourceTable struct{ *engine.DataSourceConfig }

func (t dataSourceTable) Headers() []string { return []string{"DATA SOURCE", "CONFIG VERSION"} }

func (t dataSourceTable) Rows() [][]string {
	version := strconv.FormatInt(t.Version, 10)
	rows := make([][]string, 0, len(t.DataSources))
	for _, code := range t.DataSources {
		rows = append(rows, []string{code, version})
	}
	return rows
}
