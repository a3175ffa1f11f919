package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "btcomm",
	Short: "Peer-to-peer BLE messaging tool",
	Long: `btcomm drives the btcomm transport core from the command line:

- Advertise this device and accept inbound peer connections
- Scan for and connect to advertising peers
- Send one-off text or binary messages to a connected peer or broadcast
- Bridge a connected peer's binary stream to a local PTY

Every subcommand shares one Communicator instance per process; only one
of advertise/scan/bridge/send normally runs per invocation.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(advertiseCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(peersCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file overriding wire timers/sizes")
	rootCmd.PersistentFlags().String("name", "btcomm-user", "Local display name advertised to peers")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
