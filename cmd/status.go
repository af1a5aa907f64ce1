// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/ethmqtt/internal/command"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status",
	Long: `Query the daemon for the node addresses, the connection state, the
indicator and the learned neighbours.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().Status(context.Background())
		if err != nil {
			return err
		}
		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		command.WriteStatus(os.Stdout, status)
		return nil
	},
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON")
}
