// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive terminal for the daemon",
	Long: `Read commands from stdin and forward them to the daemon:

  REBOOT
  STATUS
  SET IP a b c d
  SET MQTT a b c d
  CONNECT [MQTT]
  SUBSCRIBE topic
  UNSUBSCRIBE topic
  PUBLISH topic data
  DISCONNECT`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Console(context.Background(), os.Stdin, os.Stdout)
	},
}
