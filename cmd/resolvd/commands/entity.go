package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/pkg/api/rpc"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/spf13/cobra"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Look up resolved entities",
	Long: `Look up resolved entities on a running server.

Examples:
  resolvd entity get 42
  resolvd entity of CUSTOMERS 1001
  resolvd entity search --attr EMAIL=ada@example.com
  resolvd entity stats`,
}

var entityGetCmd = &cobra.Command{
	Use:   "get <entity-id>",
	Short: "Show an entity by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entity id %q", args[0])
		}
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			ent, err := c.GetEntityByID(ctx, id)
			if err != nil {
				return err
			}
			return printView(p, entityTable{*ent}, ent)
		})
	},
}

var entityOfCmd = &cobra.Command{
	Use:   "of <data-source> <record-id>",
	Short: "Show the entity a record resolved to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			ent, err := c.GetEntityByRecordID(ctx, recordKey(args[0], args[1]))
			if err != nil {
				return err
			}
			return printView(p, entityTable{*ent}, ent)
		})
	},
}

var searchAttrs []string

var entitySearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find entities matching attributes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := parseAttrs(searchAttrs)
		if err != nil {
			return err
		}
		if len(attrs) == 0 {
			return fmt.Errorf("at least one --attr is required")
		}
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			ents, err := c.SearchByAttributes(ctx, attrs)
			if err != nil {
				return err
			}
			return printView(p, entityTable(ents), ents)
		})
	},
}

var entityStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show repository statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			stats, err := c.GetStats(ctx)
			if err != nil {
				return err
			}
			table := output.NewTableData("DATA SOURCE", "RECORDS")
			for _, code := range sortedCounts(stats.DataSources) {
				table.AddRow(code, strconv.FormatInt(stats.DataSources[code], 10))
			}
			table.AddRow("TOTAL RECORDS", strconv.FormatInt(stats.Records, 10))
			table.AddRow("TOTAL ENTITIES", strconv.FormatInt(stats.Entities, 10))
			return printView(p, table, stats)
		})
	},
}

func init() {
	entitySearchCmd.Flags().StringArrayVar(&searchAttrs, "attr", nil, "Attribute as NAME=value (repeatable)")

	entityCmd.AddCommand(entityGetCmd)
	entityCmd.AddCommand(entityOfCmd)
	entityCmd.AddCommand(entitySearchCmd)
	entityCmd.AddCommand(entityStatsCmd)
}

// entityTable renders one row per resolved record.
type entityTable []engine.Entity

func (t entityTable) Headers() []string { return []string{"ENTITY", "DATA SOURCE", "RECORD ID"} }

func (t entityTable) Rows() [][]string {
	var rows [][]string
	for _, ent := range t {
		id := strconv.FormatInt(ent.EntityID, 10)
		for _, rec := range ent.Records {
			rows = append(rows, []string{id, rec.DataSource, rec.RecordID})
		}
	}
	return rows
}

func sortedCounts(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
