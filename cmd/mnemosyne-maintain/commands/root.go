// Package commands provides the CLI commands for mnemosyne-maintain.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemosyne/brain/internal/logging"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags.
var (
	logPretty bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "mnemosyne-maintain",
	Short: "Retention and compaction sweep for the mnemosyne-brain row store",
	Long: `mnemosyne-maintain runs the out-of-band maintenance sweep: prune
sessions older than the retention window, prune raw events older than
theirs, remove stale screenshot files, and compact the row store.

Run with no subcommand to perform the full sweep, or invoke a single
step directly.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Output: os.Stderr,
			Pretty: logPretty,
		})
	},
	RunE: runSweep,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Use human-readable console logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	addStoreFlags(rootCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("mnemosyne-maintain %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(pruneSessionsCmd)
	rootCmd.AddCommand(pruneEventsCmd)
	rootCmd.AddCommand(cleanScreenshotsCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(runCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
