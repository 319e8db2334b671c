// Package commands implements the senderd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "senderd",
	Short: "senderd polls backup sources and uploads due backups over mTLS",
	Long: `senderd is the sending side of the backup transport: once per
polling pass it checks each configured source's declared cadences against
its on-disk history, and uploads any backup that is due to the configured
receiver.

Use "senderd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to senderd configuration file (required)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
