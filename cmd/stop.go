// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the ethmqtt daemon",
	Long: `Stop the ethmqtt daemon gracefully.

This command sends daemon_shutdown to the running daemon via Unix Domain Socket.
The daemon closes the control socket, stops the node loop, flushes the capture
file and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Shutdown(context.Background())
		if err != nil {
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		fmt.Println("Daemon is shutting down")
		return nil
	},
}
