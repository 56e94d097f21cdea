package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

var (
	logLevel   string
	logFile    string
	structured bool
)

// errIncomplete marks a campaign that ran to completion with failed items.
var errIncomplete = errors.New("campaign completed with errors")

var rootCmd = &cobra.Command{
	Use:   "narwhal",
	Short: "Autonomous capture-the-flag mission orchestrator",
	Long: `narwhal runs one recon/scout mission per challenge of a campaign,
retries the failures once and writes per-challenge and aggregate reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "narwhal v%s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides campaign setting)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&structured, "json-logs", false, "Emit JSON log lines")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(executorCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	code := exitStatus(err)
	if code == 1 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
