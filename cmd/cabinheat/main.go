// Cabinheat is a BLE client for diesel cabin heater control boxes.
//
// It scans for heaters, polls their status, issues power/temperature/
// level commands, shows a live terminal view, and can run a small HTTP
// bridge for home automation. Heater addresses and PINs are kept in a
// per-user config file.
//
// Usage:
//
//	cabinheat [command] [flags]
//
// See 'cabinheat --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brodvik/cabinheat/internal/logging"
	"github.com/brodvik/cabinheat/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cabinheat",
	Short: "Cabin Heater BLE Control Utility",
	Long: `A client for BLE-connected diesel cabin heater control boxes.

Scan for heaters, read their status, switch them on and off, set target
temperature and power level, watch them live in the terminal, or expose
them to home automation over HTTP.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cabinheat %s\n", version.Full())
	},
}
