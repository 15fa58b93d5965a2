package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/internal/cli/timeutil"
	"github.com/marmos91/resolvd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the status of a running resolvd server.

Calls the admin API for liveness, readiness, the environment state, engine
statistics and process resource usage.

Examples:
  # Check status of the current context
  resolvd status

  # Check a specific server
  resolvd status --admin http://resolvd.internal:7061

  # Output as JSON
  resolvd status --output json`,
	RunE: runStatus,
}

// ServerStatus is the combined view printed by the status command.
type ServerStatus struct {
	Running  bool              `json:"running" yaml:"running"`
	Ready    bool              `json:"ready" yaml:"ready"`
	Message  string            `json:"message" yaml:"message"`
	Uptime   string            `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Snapshot *apiclient.Status `json:"status,omitempty" yaml:"status,omitempty"`
}

// Headers implements output.TableRenderer.
func (s ServerStatus) Headers() []string { return []string{"FIELD", "VALUE"} }

// Rows implements output.TableRenderer.
func (s ServerStatus) Rows() [][]string {
	rows := [][]string{
		{"Running", strconv.FormatBool(s.Running)},
		{"Ready", strconv.FormatBool(s.Ready)},
		{"Message", s.Message},
	}
	if s.Uptime != "" {
		rows = append(rows, []string{"Uptime", timeutil.FormatUptime(s.Uptime)})
	}
	if st := s.Snapshot; st != nil {
		rows = append(rows,
			[]string{"State", st.State},
			[]string{"In flight", strconv.Itoa(st.InFlight)},
			[]string{"Open sessions", strconv.Itoa(st.OpenSessions)},
			[]string{"Engine", st.Engine.Product + " " + st.Engine.Version},
			[]string{"Environment since", st.CreatedAt.Local().Format(timeutil.LocalTimeFormat)},
		)
		if st.Stats != nil {
			rows = append(rows,
				[]string{"Records", humanize.Comma(st.Stats.Records)},
				[]string{"Entities", humanize.Comma(st.Stats.Entities)},
			)
		} else if st.StatsError != "" {
			rows = append(rows, []string{"Stats", "unavailable: " + st.StatsError})
		}
		rows = append(rows,
			[]string{"PID", strconv.Itoa(int(st.Process.PID))},
			[]string{"RSS", humanize.IBytes(st.Process.RSSBytes)},
			[]string{"CPU", fmt.Sprintf("%.1f%%", st.Process.CPUPercent)},
			[]string{"Goroutines", strconv.Itoa(st.Process.Goroutines)},
		)
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	client, err := adminClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	status := ServerStatus{Message: "Server is not running"}

	live, err := client.Liveness(ctx)
	if err != nil {
		return printStatus(printer, status)
	}
	status.Running = true
	status.Uptime = live.Uptime

	if err := client.Ready(ctx); err != nil {
		status.Message = "Server is running but not ready: " + reason(err)
	} else {
		status.Ready = true
		status.Message = "Server is running and ready"
	}

	snapshot, err := client.Status(ctx)
	if err == nil {
		status.Snapshot = snapshot
	}
	return printStatus(printer, status)
}

func printStatus(printer *output.Printer, status ServerStatus) error {
	if printer.Format() != output.FormatTable {
		return printer.Print(status)
	}
	switch {
	case status.Ready:
		printer.Success(status.Message)
	case status.Running:
		printer.Warning(status.Message)
	default:
		printer.Error(status.Message)
		return nil
	}
	printer.Println()
	return output.PrintTable(printer.Writer(), status)
}

// reason extracts the most specific message from an admin API error.
func reason(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Reason != "" {
			return apiErr.Reason
		}
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
	}
	return err.Error()
}
