package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/internal/cli/prompt"
	"github.com/marmos91/resolvd/pkg/api/rpc"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// rpcTimeout bounds single request commands.
const rpcTimeout = 30 * time.Second

var (
	recordAttrs []string
	recordFile  string
	recordForce bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Add, inspect and delete records",
	Long: `Manage source records on a running server.

Examples:
  # Add a record from attributes
  resolvd record add CUSTOMERS 1001 --attr NAME_FULL="Ada Lovelace" --attr EMAIL=ada@example.com

  # Add a record from a YAML or JSON file
  resolvd record add --file record.yaml

  resolvd record get CUSTOMERS 1001
  resolvd record delete CUSTOMERS 1001
  resolvd record why CUSTOMERS 1001 WATCHLIST 7`,
}

var recordAddCmd = &cobra.Command{
	Use:   "add [data-source record-id]",
	Short: "Add or replace a record",
	Args:  cobra.MatchAll(cobra.MaximumNArgs(2), exactOrNone(2)),
	RunE:  runRecordAdd,
}

var recordGetCmd = &cobra.Command{
	Use:   "get <data-source> <record-id>",
	Short: "Show a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			rec, err := c.GetRecord(ctx, recordKey(args[0], args[1]))
			if err != nil {
				return err
			}
			return printView(p, recordView{rec}, rec)
		})
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <data-source> <record-id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete record %s/%s", args[0], args[1]), recordForce)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			if err := c.DeleteRecord(ctx, recordKey(args[0], args[1])); err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Record %s/%s deleted", args[0], args[1]))
			return nil
		})
	},
}

var recordWhyCmd = &cobra.Command{
	Use:   "why <data-source> <record-id> <data-source> <record-id>",
	Short: "Explain how two records relate",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
			why, err := c.WhyRecords(ctx, recordKey(args[0], args[1]), recordKey(args[2], args[3]))
			if err != nil {
				return err
			}
			return printView(p, whyView{why}, why)
		})
	},
}

func init() {
	recordAddCmd.Flags().StringArrayVar(&recordAttrs, "attr", nil, "Attribute as NAME=value (repeatable)")
	recordAddCmd.Flags().StringVarP(&recordFile, "file", "f", "", "Read the record from a YAML or JSON file")
	recordDeleteCmd.Flags().BoolVar(&recordForce, "force", false, "Skip the confirmation prompt")

	recordCmd.AddCommand(recordAddCmd)
	recordCmd.AddCommand(recordGetCmd)
	recordCmd.AddCommand(recordDeleteCmd)
	recordCmd.AddCommand(recordWhyCmd)
}

func runRecordAdd(cmd *cobra.Command, args []string) error {
	rec, err := buildRecord(args)
	if err != nil {
		return err
	}
	return withRPC(cmd, func(ctx context.Context, c *rpc.Client, p *output.Printer) error {
		ref, err := c.AddRecord(ctx, rec)
		if err != nil {
			return err
		}
		if p.Format() != output.FormatTable {
			return p.Print(ref)
		}
		verb := "joined"
		if ref.Created {
			verb = "created"
		}
		p.Success(fmt.Sprintf("Record %s/%s %s entity %d", rec.DataSource, rec.RecordID, verb, ref.EntityID))
		return nil
	})
}

func buildRecord(args []string) (engine.Record, error) {
	var rec engine.Record
	if recordFile != "" {
		data, err := os.ReadFile(recordFile)
		if err != nil {
			return rec, err
		}
		// YAML is a superset of JSON, so one decoder serves both.
		var doc struct {
			DataSource string            `yaml:"data_source"`
			RecordID   string            `yaml:"record_id"`
			Attributes map[string]string `yaml:"attributes"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return rec, fmt.Errorf("failed to parse %s: %w", recordFile, err)
		}
		rec = engine.Record{DataSource: doc.DataSource, RecordID: doc.RecordID, Attributes: doc.Attributes}
	}

	if len(args) == 2 {
		rec.DataSource, rec.RecordID = strings.ToUpper(args[0]), args[1]
	}
	attrs, err := parseAttrs(recordAttrs)
	if err != nil {
		return rec, err
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]string{}
	}
	for k, v := range attrs {
		rec.Attributes[k] = v
	}

	if rec.DataSource == "" || rec.RecordID == "" {
		return rec, fmt.Errorf("data source and record id are required, as arguments or in --file")
	}
	return rec, nil
}

// parseAttrs parses NAME=value pairs. Names are upper-cased.
func parseAttrs(pairs []string) (map[string]string, error) {
	attrs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected NAME=value", pair)
		}
		attrs[strings.ToUpper(strings.TrimSpace(name))] = value
	}
	return attrs, nil
}

func recordKey(dataSource, recordID string) engine.RecordKey {
	return engine.RecordKey{DataSource: strings.ToUpper(dataSource), RecordID: recordID}
}

// exactOrNone accepts either no arguments or exactly n.
func exactOrNone(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != n {
			return fmt.Errorf("accepts 0 or %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}

// withRPC dials the server, bounds the call with rpcTimeout and hands fn a
// printer for the selected output format.
func withRPC(cmd *cobra.Command, fn func(ctx context.Context, c *rpc.Client, p *output.Printer) error) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	client, err := dialRPC()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()
	return fn(ctx, client, printer)
}

// printView prints view as a table, or raw for JSON and YAML.
func printView(p *output.Printer, view output.TableRenderer, raw any) error {
	if p.Format() == output.FormatTable {
		return output.PrintTable(p.Writer(), view)
	}
	return p.Print(raw)
}

// recordView renders a record as attribute rows.
type recordView struct{ *engine.Record }

func (v recordView) Headers() []string { return []string{"ATTRIBUTE", "VALUE"} }

func (v recordView) Rows() [][]string {
	rows := [][]string{{"DATA_SOURCE", v.DataSource}, {"RECORD_ID", v.RecordID}}
	for _, name := range sortedKeys(v.Attributes) {
		rows = append(rows, []string{name, v.Attributes[name]})
	}
	return rows
}

type whyView struct{ *engine.WhyResult }

func (v whyView) Headers() []string { return []string{"FEATURE", "VALUE"} }

func (v whyView) Rows() [][]string {
	rows := [][]string{{"SAME_ENTITY", strconv.FormatBool(v.SameEntity)}}
	for _, name := range sortedKeys(v.SharedFeatures) {
		rows = append(rows, []string{name, v.SharedFeatures[name]})
	}
	return rows
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
