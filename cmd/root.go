// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/ethmqtt/internal/command"
)

var (
	// Global flags
	configFile string
	socketPath string
	timeout    time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ethmqtt",
	Short: "ethmqtt - Ethernet node with its own IPv4 stack and MQTT client",
	Long: `ethmqtt runs a minimal network node directly on an Ethernet interface.
It owns a MAC and IPv4 address, answers ARP, ping and UDP, and keeps a single
TCP connection to an MQTT broker over which it publishes and subscribes.

The daemon is controlled through a Unix Domain Socket by the other commands,
or interactively with the console command.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ethmqtt/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/ethmqtt.sock",
		"daemon socket path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"control request timeout")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(mqttCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(consoleCmd)
}

func newClient() *command.UDSClient {
	return command.NewUDSClient(socketPath, timeout)
}

// call sends one control request and turns an error response into an error.
func call(method string, params interface{}) (*command.Response, error) {
	resp, err := newClient().Call(context.Background(), method, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
