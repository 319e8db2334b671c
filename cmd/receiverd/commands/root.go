// Package commands implements the receiverd CLI.
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
	Use:   "receiverd",
	Short: "receiverd accepts mTLS backup uploads and writes them to disk",
	Long: `receiverd is the receiving side of the backup transport: it listens
for mTLS connections, reads a fixed-layout metadata header followed by a
payload stream, writes the payload under its configured backups root, and
enforces per-peer rate limiting and per-cadence retention.

Use "receiverd [command] --help" for more information about a command.`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to receiverd configuration file (required)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
