// deckscan drives a deck scanning microscope.
//
// It resolves stage positions to labware wells, keeps an editable scan
// list, and runs timelapse experiments that visit every checked point,
// optionally refocusing, and save one frame per illumination channel.
//
// Commands:
//   - serve: HTTP/WebSocket API with MQTT, InfluxDB and Prometheus telemetry
//   - run: headless run of one experiment file until completion or SIGINT
//   - validate: load an experiment file against the deck layout
//   - version: print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "deckscan",
		Short:         "Deck scanning microscope service",
		Long:          "deckscan maps stage positions to labware wells and runs timelapse scans over a deck of plates.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "configuration file (default $DECKSCAN_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newServeCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deckscan %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}

// configPath returns the --config flag, falling back to getConfigPath.
func configPath(cmd *cobra.Command) string {
	if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
		return path
	}
	return getConfigPath()
}

// getConfigPath returns the configuration file path.
// Uses DECKSCAN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DECKSCAN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
