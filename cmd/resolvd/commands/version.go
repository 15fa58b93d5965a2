package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var versionRemote bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the version of this binary. With --remote, also ask the running
server for its build and the engine version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "resolvd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		if !versionRemote {
			return nil
		}

		client, err := dialRPC()
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		v, err := client.GetVersion(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "server  %s\nengine  %s %s (started %s)\n",
			v.Server, v.Engine.Product, v.Engine.Version, v.Engine.StartedAt.Local().Format(time.RFC3339))
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "Also query the server version")
}
