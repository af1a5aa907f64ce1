package node

import (
	"context"
	"fmt"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/mqtt"
	"firestige.xyz/ethmqtt/internal/neighbor"
	"firestige.xyz/ethmqtt/internal/netcfg"
	"firestige.xyz/ethmqtt/internal/session"
)

// Snapshot is a copy of the node state for status output.
type Snapshot struct {
	netcfg.Values
	State         string           `json:"state"`
	LinkUp        bool             `json:"link_up"`
	MQTTConnected bool             `json:"mqtt_connected"`
	Indicator     bool             `json:"indicator"`
	Neighbors     []neighbor.Entry `json:"neighbors"`
	Stats         Stats            `json:"stats"`
}

// Status returns the current state.
func (n *Node) Status(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := n.call(ctx, func() error {
		snap = Snapshot{
			Values:        n.cfg.Values(),
			State:         n.machine.State().String(),
			LinkUp:        n.drv.IsLinkUp(),
			MQTTConnected: n.mqttUp,
			Indicator:     n.indicator,
			Neighbors:     n.neighbors.Entries(),
			Stats:         n.stats,
		}
		return nil
	})
	return snap, err
}

// Connect starts the ARP, SYN, ACK sequence towards the broker.
func (n *Node) Connect(ctx context.Context) error {
	return n.call(ctx, n.machine.Connect)
}

// Reset drops the connection, if any, and returns to Idle. An active
// connection is torn down with a RST-ACK.
func (n *Node) Reset(ctx context.Context) error {
	return n.call(ctx, func() error {
		if n.machine.Cancel() {
			return nil
		}
		if n.machine.State() == session.StateTCPConnectionActive {
			n.sent("tcp_rst_ack", n.segment(decoder.TCPFlagsRSTACK, nil))
		}
		n.machine.Reset()
		return nil
	})
}

// SetIP changes and persists the node address.
func (n *Node) SetIP(ctx context.Context, ip core.IPv4Addr) error {
	return n.call(ctx, func() error {
		n.cfg.SetIP(ip)
		log.GetLogger().WithField("ip", ip.String()).Info("Node address changed")
		if err := n.store.SaveIP(ip); err != nil {
			return fmt.Errorf("persist ip: %w", err)
		}
		return nil
	})
}

// SetBrokerIP changes and persists the broker address. The next Connect
// resolves it again.
func (n *Node) SetBrokerIP(ctx context.Context, ip core.IPv4Addr) error {
	return n.call(ctx, func() error {
		n.cfg.SetBrokerIP(ip)
		log.GetLogger().WithField("broker", ip.String()).Info("Broker address changed")
		if err := n.store.SaveBrokerIP(ip); err != nil {
			return fmt.Errorf("persist broker ip: %w", err)
		}
		return nil
	})
}

func (n *Node) SetSubnetMask(ctx context.Context, mask core.IPv4Addr) error {
	return n.call(ctx, func() error {
		n.cfg.SetSubnetMask(mask)
		return nil
	})
}

func (n *Node) SetGateway(ctx context.Context, gw core.IPv4Addr) error {
	return n.call(ctx, func() error {
		n.cfg.SetGateway(gw)
		return nil
	})
}

// SetBrokerMAC skips ARP resolution on networks where the broker does not
// answer it.
func (n *Node) SetBrokerMAC(ctx context.Context, hw core.HardwareAddr) error {
	return n.call(ctx, func() error {
		n.cfg.SetBrokerMAC(hw)
		return nil
	})
}

// MQTTConnect sends CONNECT. The session is up once the broker's CONNACK
// arrives.
func (n *Node) MQTTConnect(ctx context.Context) error {
	return n.call(ctx, func() error {
		return n.sendMQTT(mqtt.Connect, n.enc.Connect)
	})
}

func (n *Node) Subscribe(ctx context.Context, topic string) error {
	return n.call(ctx, func() error {
		return n.sendMQTT(mqtt.Subscribe, func() (int, error) {
			return n.enc.Subscribe(topic)
		})
	})
}

func (n *Node) Unsubscribe(ctx context.Context, topic string) error {
	return n.call(ctx, func() error {
		return n.sendMQTT(mqtt.Unsubscribe, func() (int, error) {
			return n.enc.Unsubscribe(topic)
		})
	})
}

// Publish sends a QoS 0 message.
func (n *Node) Publish(ctx context.Context, topic string, data []byte) error {
	encode := n.enc.Publish
	if n.opts.LegacyPublishTrailer {
		encode = n.enc.PublishLegacy
	}
	return n.call(ctx, func() error {
		return n.sendMQTT(mqtt.Publish, func() (int, error) {
			return encode(topic, data)
		})
	})
}

// Disconnect sends DISCONNECT. The broker then closes the TCP connection.
func (n *Node) Disconnect(ctx context.Context) error {
	return n.call(ctx, func() error {
		if err := n.sendMQTT(mqtt.Disconnect, n.enc.Disconnect); err != nil {
			return err
		}
		n.mqttUp = false
		return nil
	})
}
