// Package cmd implements CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/ethmqtt/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the ethmqtt node in foreground",
	Long: `Run the ethmqtt node in foreground.

The daemon will:
  1. Load global configuration from config file
  2. Initialize logging and metrics
  3. Open the frame driver and restore persisted addresses
  4. Start the node loop and the UDS server for CLI control
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

var pidFile string

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default: control.pid_file from config)")
}

func runDaemon() error {
	// Create daemon instance
	d, err := daemon.New(configFile, socketPath, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Start all components
	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
