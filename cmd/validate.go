// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/ethmqtt/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file given with --config without
starting the daemon. Environment overrides (ETHMQTT_*) are applied.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("VALID: node %s/%s on %s (%s driver), broker %s:%d\n",
			cfg.Node.IP, cfg.Node.MAC, cfg.Interface, cfg.Driver.Type,
			cfg.MQTT.BrokerIP, cfg.MQTT.Port)
	},
}
