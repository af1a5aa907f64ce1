// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/ethmqtt/internal/command"
)

var setCmd = &cobra.Command{
	Use:   "set ip|mqtt|mask|gw|broker-mac ADDRESS",
	Short: "Change a node address",
	Long: `Change a node address. IPv4 addresses are given dotted or as four
numbers. The node and broker addresses are persisted across restarts.

Examples:
  ethmqtt set ip 192.168.1.112
  ethmqtt set mqtt 192 168 1 1
  ethmqtt set broker-mac 10:20:30:40:50:60`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, params, err := setRequest(args)
		if err != nil {
			return err
		}
		if _, err := call(method, params); err != nil {
			return err
		}
		fmt.Printf("%s set\n", args[0])
		return nil
	},
}

func setRequest(args []string) (string, interface{}, error) {
	if strings.EqualFold(args[0], "broker-mac") {
		return command.MethodNodeSet, command.SetParams{Field: command.FieldBrokerMAC, Value: args[1]}, nil
	}
	return command.ParseLine("SET " + strings.Join(args, " "))
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open the TCP connection to the broker",
	Long:  `Resolve the broker with ARP and run the TCP handshake. Follow with "mqtt connect".`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := call(command.MethodNodeConnect, nil)
		return err
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Drop the connection and return to idle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := call(command.MethodNodeReset, nil)
		return err
	},
}

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Send MQTT packets on the active connection",
}

func init() {
	mqttCmd.AddCommand(&cobra.Command{
		Use:   "connect",
		Short: "Send CONNECT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(command.MethodMQTTConnect, nil)
			return err
		},
	}, &cobra.Command{
		Use:   "subscribe TOPIC",
		Short: "Send SUBSCRIBE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(command.MethodMQTTSubscribe, command.TopicParams{Topic: args[0]})
			return err
		},
	}, &cobra.Command{
		Use:   "unsubscribe TOPIC",
		Short: "Send UNSUBSCRIBE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(command.MethodMQTTUnsubscribe, command.TopicParams{Topic: args[0]})
			return err
		},
	}, &cobra.Command{
		Use:   "publish TOPIC DATA...",
		Short: "Send a QoS 0 PUBLISH",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(command.MethodMQTTPublish, command.PublishParams{
				Topic: args[0],
				Data:  strings.Join(args[1:], " "),
			})
			return err
		},
	}, &cobra.Command{
		Use:   "disconnect",
		Short: "Send DISCONNECT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(command.MethodMQTTDisconnect, nil)
			return err
		},
	})
}
