package node

import (
	"bytes"
	"errors"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/builder"
	"firestige.xyz/ethmqtt/internal/core/classify"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/metrics"
	"firestige.xyz/ethmqtt/internal/session"
)

// udpReply answers every datagram.
var udpReply = []byte("Received\x00")

// handleFrame answers the frame held in the first size bytes of the buffer.
// Replies are built in place, so anything needed from the request is read
// before the builder runs.
func (n *Node) handleFrame(size int) {
	kind, f := n.cls.Classify(n.buf[:size])
	n.stats.Received++
	metrics.FramesReceivedTotal.WithLabelValues(kind.String()).Inc()

	switch kind {
	case classify.KindARPRequest:
		n.neighbors.Learn(f.ARP.SenderIP(), f.ARP.SenderHardwareAddr())
		n.sent("arp_reply", n.build.ARPReply(n.buf[:]))

	case classify.KindARPReply:
		n.neighbors.Learn(f.ARP.SenderIP(), f.ARP.SenderHardwareAddr())
		if consumed, _ := n.machine.HandleFrame(kind, f); !consumed {
			n.drop("unsolicited")
		}

	case classify.KindPingRequest:
		n.sent("icmp_echo_reply", n.build.ICMPEchoReply(n.buf[:]))

	case classify.KindUDP:
		n.handleUDP(f)

	case classify.KindTCP:
		n.handleTCP(kind, f)

	case classify.KindMalformed, classify.KindNotForUs:
		n.drop(kind.String())

	case classify.KindUnknown, classify.KindIPOther:
		n.drop("unsupported")
	}
}

func (n *Node) handleUDP(f decoder.Frame) {
	command := string(bytes.TrimRight(f.UDP.Payload(), "\x00\r\n "))
	switch command {
	case "on":
		n.indicator = true
	case "off":
		n.indicator = false
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"from":      f.IPv4.Source().String(),
		"port":      f.UDP.DestinationPort(),
		"indicator": n.indicator,
	}).Debugf("Received datagram %q", command)

	n.sent("udp_reply", n.build.UDPReply(n.buf[:], udpReply))
}

func (n *Node) handleTCP(kind classify.Kind, f decoder.Frame) {
	if n.machine.State() != session.StateTCPConnectionActive {
		consumed, err := n.machine.HandleFrame(kind, f)
		if errors.Is(err, core.ErrConnectionRefused) {
			log.GetLogger().WithField("broker", n.cfg.BrokerIP().String()).Warn("Broker refused the connection")
		}
		if !consumed {
			n.drop("no_connection")
		}
		return
	}
	if !n.fromBroker(f) {
		n.drop("no_connection")
		return
	}
	n.handleSegment(f)
}

func (n *Node) fromBroker(f decoder.Frame) bool {
	return f.Ethernet.Destination() == n.cfg.MAC() &&
		f.IPv4.Source() == n.cfg.BrokerIP() &&
		f.TCP.SourcePort() == n.cfg.BrokerPort() &&
		f.TCP.DestinationPort() == n.cfg.LocalPort()
}

// handleSegment processes broker traffic on the active connection. Data is
// accepted only in order; anything else is answered with the current
// acknowledgment so the broker retransmits.
func (n *Node) handleSegment(f decoder.Frame) {
	flags := f.TCP.Flags()
	if flags.Has(decoder.TCPFlagRST) {
		log.GetLogger().WithField("broker", n.cfg.BrokerIP().String()).Warn("Connection reset by broker")
		n.machine.Reset()
		return
	}

	payload := f.TCP.Payload()
	fin := flags.Has(decoder.TCPFlagFIN)
	if len(payload) == 0 && !fin {
		return
	}

	seq := f.TCP.SequenceNumber()
	if seq != n.cfg.Ack() {
		log.GetLogger().WithFields(map[string]interface{}{
			"seq":      seq,
			"expected": n.cfg.Ack(),
		}).Debug("Out of order segment")
		n.sent("tcp_ack", n.segment(decoder.TCPFlagsACK, nil))
		return
	}

	if len(payload) > 0 {
		n.handleMQTT(payload)
	}
	n.cfg.SetAck(seq + builder.SequenceLen(flags, len(payload)))

	if fin {
		n.sent("tcp_fin_ack", n.segment(decoder.TCPFlagsFINACK, nil))
		log.GetLogger().WithField("broker", n.cfg.BrokerIP().String()).Info("Broker closed the connection")
		n.machine.Reset()
		return
	}
	n.sent("tcp_ack", n.segment(decoder.TCPFlagsACK, nil))
}

func (n *Node) segment(flags decoder.TCPFlags, payload []byte) error {
	return n.build.TCPSegment(n.buf[:], n.cfg.Socket(), flags, payload)
}
