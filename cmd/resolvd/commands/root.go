// Package commands implements the resolvd CLI.
package commands

import (
	"os"

	"github.com/marmos91/resolvd/cmd/resolvd/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "resolvd",
	Short: "resolvd - entity resolution service",
	Long: `resolvd runs an entity resolution engine behind a gRPC service with
admission control, streaming exports and classified errors.

Server commands (init, start, config) read the YAML configuration file.
Client commands (record, datasource, export, status, sessions) talk to a
running server, using the current context unless --rpc or --admin is given.

Use "resolvd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/resolvd/config.yaml)")
	addClientFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(datasourceCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
