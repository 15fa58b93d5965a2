package commands

import (
	"fmt"

	"github.com/marmos91/resolvd/internal/cli/credentials"
	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage client contexts",
	Long: `Manage the servers client commands talk to.

A context names an RPC address, an admin API URL and optionally a token.
Client commands use the current context unless --context, --rpc, --admin
or --token is given.

Examples:
  resolvd context set prod --rpc-addr resolvd.internal:7060 --admin-url http://resolvd.internal:7061
  resolvd context use prod
  resolvd context list`,
}

var (
	ctxRPCAddr  string
	ctxAdminURL string
)

var contextSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		ctx, err := store.GetContext(args[0])
		if err != nil {
			ctx = &credentials.Context{RPCAddr: defaultRPCAddr, AdminURL: defaultAdminURL}
		}
		if ctxRPCAddr != "" {
			ctx.RPCAddr = ctxRPCAddr
		}
		if ctxAdminURL != "" {
			ctx.AdminURL = ctxAdminURL
		}
		if err := store.SetContext(args[0], ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Context %q saved\n", args[0])
		return nil
	},
}

var contextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := store.UseContext(args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", args[0])
		return nil
	},
}

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		return store.DeleteContext(args[0])
	},
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := newPrinter(cmd)
		if err != nil {
			return err
		}
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}

		table := output.NewTableData("CURRENT", "NAME", "RPC", "ADMIN", "TOKEN")
		for _, name := range store.ListContexts() {
			ctx, _ := store.GetContext(name)
			current := ""
			if name == store.GetCurrentContextName() {
				current = "*"
			}
			tokenState := "none"
			switch {
			case ctx.Token != "" && ctx.IsExpired():
				tokenState = "expired"
			case ctx.Token != "":
				tokenState = "valid"
			}
			table.AddRow(current, name, ctx.RPCAddr, ctx.AdminURL, tokenState)
		}
		if printer.Format() == output.FormatTable {
			return output.PrintTable(printer.Writer(), table)
		}
		return printer.Print(table.Rows())
	},
}

func init() {
	contextSetCmd.Flags().StringVar(&ctxRPCAddr, "rpc-addr", "", "RPC server address")
	contextSetCmd.Flags().StringVar(&ctxAdminURL, "admin-url", "", "Admin API URL")

	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextDeleteCmd)
	contextCmd.AddCommand(contextListCmd)
}
