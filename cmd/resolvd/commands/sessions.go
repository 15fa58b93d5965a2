package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or close export sessions",
	Long: `List the open export sessions of a running server, or force one closed.

Examples:
  resolvd sessions list
  resolvd sessions close 3`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open export sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		sessions, err := client.Sessions(ctx)
		if err != nil {
			return err
		}
		return printer.Print(sessionTable(sessions))
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <handle>",
	Short: "Close an export session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid handle %q: must be an integer", args[0])
		}
		client, err := adminClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		if err := client.CloseSession(ctx, handle); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session %d closed\n", handle)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
}

// sessionTable renders sessions as a table and as a plain list for JSON and
// YAML output.
type sessionTable []export.SessionInfo

func (s sessionTable) Headers() []string { return []string{"HANDLE", "KIND", "OPENED"} }

func (s sessionTable) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, info := range s {
		rows = append(rows, []string{
			strconv.FormatInt(info.Handle, 10),
			string(info.Kind),
			humanize.Time(info.CreatedAt),
		})
	}
	return rows
}
