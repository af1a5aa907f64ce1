// Package classify inspects received frames. Every predicate is read-only:
// it validates offsets before following them and never writes to the frame.
package classify

import (
	"firestige.xyz/ethmqtt/internal/core/checksum"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/mqtt"
	"firestige.xyz/ethmqtt/internal/netcfg"
)

// Classifier answers questions about a frame relative to the node identity.
type Classifier struct {
	cfg           *netcfg.Config
	legacyConnack bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLegacyConnack makes IsMQTTConnectAck read the return code from the
// first CONNACK variable header byte.
func WithLegacyConnack(legacy bool) Option {
	return func(c *Classifier) { c.legacyConnack = legacy }
}

// New creates a Classifier reading the local addresses from cfg.
func New(cfg *netcfg.Config, opts ...Option) *Classifier {
	c := &Classifier{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify locates the layers of frame and names what it is.
// The located views are returned for the caller to dispatch on.
func (c *Classifier) Classify(frame []byte) (Kind, decoder.Frame) {
	f, err := decoder.Locate(frame)
	if err != nil {
		return KindMalformed, f
	}

	switch f.Ethernet.EtherType() {
	case decoder.EtherTypeARP:
		switch {
		case c.arpFor(f, decoder.ARPOpRequest):
			return KindARPRequest, f
		case c.arpFor(f, decoder.ARPOpReply):
			return KindARPReply, f
		default:
			return KindNotForUs, f
		}
	case decoder.EtherTypeIPv4:
	default:
		return KindUnknown, f
	}

	if !f.IPv4.IsChecksumValid() {
		return KindMalformed, f
	}
	if f.IPv4.Destination() != c.cfg.IP() {
		return KindNotForUs, f
	}

	switch f.IPv4.Protocol() {
	case decoder.ProtocolICMP:
		if f.ICMP.Type() == decoder.ICMPTypeEchoRequest {
			return KindPingRequest, f
		}
		return KindIPOther, f
	case decoder.ProtocolUDP:
		if !udpValid(f) {
			return KindMalformed, f
		}
		return KindUDP, f
	case decoder.ProtocolTCP:
		if checksum.Transport(f.IPv4.Source(), f.IPv4.Destination(), decoder.ProtocolTCP, f.TCP) != 0 {
			return KindMalformed, f
		}
		return KindTCP, f
	default:
		return KindIPOther, f
	}
}

// IsIP reports whether frame carries IPv4 with a valid header checksum.
func (c *Classifier) IsIP(frame []byte) bool {
	ip, ok := locateIPv4(frame)
	return ok && ip.IsChecksumValid()
}

// IsIPUnicast reports whether a valid IPv4 datagram is addressed to the
// local IP. Every octet is compared.
func (c *Classifier) IsIPUnicast(frame []byte) bool {
	ip, ok := locateIPv4(frame)
	return ok && ip.IsChecksumValid() && ip.Destination() == c.cfg.IP()
}

// IsARPRequest reports whether frame is an ARP request for the local IP.
func (c *Classifier) IsARPRequest(frame []byte) bool {
	f, err := decoder.Locate(frame)
	return err == nil && c.arpFor(f, decoder.ARPOpRequest)
}

// IsARPReply reports whether frame is an ARP reply addressed to the local IP.
func (c *Classifier) IsARPReply(frame []byte) bool {
	f, err := decoder.Locate(frame)
	return err == nil && c.arpFor(f, decoder.ARPOpReply)
}

// IsPingRequest reports whether frame is a valid ICMP echo request.
func (c *Classifier) IsPingRequest(frame []byte) bool {
	f, err := decoder.Locate(frame)
	return err == nil && f.ICMP != nil && f.IPv4.IsChecksumValid() &&
		f.ICMP.Type() == decoder.ICMPTypeEchoRequest
}

// IsUDP reports whether frame is a valid IPv4 UDP datagram whose checksum,
// pseudo-header included, verifies.
func (c *Classifier) IsUDP(frame []byte) bool {
	f, err := decoder.Locate(frame)
	return err == nil && f.UDP != nil && f.IPv4.IsChecksumValid() && udpValid(f)
}

// IsTCP reports whether frame is an IPv4 datagram carrying TCP.
func (c *Classifier) IsTCP(frame []byte) bool {
	f, err := decoder.Locate(frame)
	return err == nil && f.TCP != nil
}

// IsTCPAck reports whether frame is a TCP segment to the local MAC with one
// of the acknowledging flag combinations.
func (c *Classifier) IsTCPAck(frame []byte) bool {
	tcp, ok := c.tcpToUs(frame)
	if !ok {
		return false
	}
	switch tcp.Flags() {
	case decoder.TCPFlagsSYNACK, decoder.TCPFlagsACK, decoder.TCPFlagsPSHACK,
		decoder.TCPFlagsFINACK, decoder.TCPFlagsRSTACK:
		return true
	}
	return false
}

// IsTCPFinAck reports whether frame is a FIN-ACK to the local MAC.
func (c *Classifier) IsTCPFinAck(frame []byte) bool {
	tcp, ok := c.tcpToUs(frame)
	return ok && tcp.Flags() == decoder.TCPFlagsFINACK
}

// IsTCPResetAck reports whether frame is a RST-ACK to the local MAC.
func (c *Classifier) IsTCPResetAck(frame []byte) bool {
	tcp, ok := c.tcpToUs(frame)
	return ok && tcp.Flags() == decoder.TCPFlagsRSTACK
}

// IsMQTTConnectAck reports whether the TCP payload is a CONNACK accepting
// the connection.
func (c *Classifier) IsMQTTConnectAck(frame []byte) bool {
	payload, ok := c.mqttPayload(frame)
	return ok && c.MQTTConnectAck(payload)
}

// IsMQTTSubAck reports whether the TCP payload is a SUBACK and returns the
// declared packet length.
func (c *Classifier) IsMQTTSubAck(frame []byte) (int, bool) {
	payload, _ := c.mqttPayload(frame)
	return c.MQTTSubAck(payload)
}

// IsMQTTUnsubAck reports whether the TCP payload is an UNSUBACK and returns
// the declared packet length.
func (c *Classifier) IsMQTTUnsubAck(frame []byte) (int, bool) {
	payload, _ := c.mqttPayload(frame)
	return c.MQTTUnsubAck(payload)
}

// IsMQTTPublish reports whether the TCP payload is a PUBLISH of any QoS and
// returns the declared packet length.
func (c *Classifier) IsMQTTPublish(frame []byte) (int, bool) {
	payload, _ := c.mqttPayload(frame)
	return c.MQTTPublish(payload)
}

// The MQTT predicates below look at the packet starting at payload, which
// may be followed by more packets of the same segment.

// MQTTConnectAck reports whether payload starts with a CONNACK accepting the
// session.
func (c *Classifier) MQTTConnectAck(payload []byte) bool {
	return mqtt.ConnackAccepted(payload, c.legacyConnack)
}

// MQTTSubAck reports whether payload starts with a SUBACK.
func (c *Classifier) MQTTSubAck(payload []byte) (int, bool) {
	return mqttPacket(payload, mqtt.Suback, 0xFF)
}

// MQTTUnsubAck reports whether payload starts with an UNSUBACK.
func (c *Classifier) MQTTUnsubAck(payload []byte) (int, bool) {
	return mqttPacket(payload, mqtt.Unsuback, 0xFF)
}

// MQTTPublish reports whether payload starts with a PUBLISH of any QoS.
func (c *Classifier) MQTTPublish(payload []byte) (int, bool) {
	return mqttPacket(payload, mqtt.Publish, 0xF0)
}

// MQTTPacketLen returns the length of the complete packet of any type
// starting at payload.
func (c *Classifier) MQTTPacketLen(payload []byte) (int, bool) {
	h, err := mqtt.ParseFixedHeader(payload)
	if err != nil || h.PacketLen() > len(payload) {
		return 0, false
	}
	return h.PacketLen(), true
}

// TCPFlags returns the flag field of a TCP frame, or zero.
func (c *Classifier) TCPFlags(frame []byte) decoder.TCPFlags {
	f, err := decoder.Locate(frame)
	if err != nil || f.TCP == nil {
		return 0
	}
	return f.TCP.Flags()
}

func (c *Classifier) arpFor(f decoder.Frame, op uint16) bool {
	return f.ARP != nil && f.ARP.Op() == op && f.ARP.TargetIP() == c.cfg.IP()
}

func (c *Classifier) tcpToUs(frame []byte) (decoder.TCP, bool) {
	f, err := decoder.Locate(frame)
	if err != nil || f.TCP == nil {
		return nil, false
	}
	return f.TCP, f.Ethernet.Destination() == c.cfg.MAC()
}

func (c *Classifier) mqttPayload(frame []byte) ([]byte, bool) {
	tcp, ok := c.tcpToUs(frame)
	if !ok || len(tcp.Payload()) == 0 {
		return nil, false
	}
	return tcp.Payload(), true
}

// mqttPacket compares the first payload byte under mask with the type and
// decodes the remaining length.
func mqttPacket(payload []byte, t mqtt.ControlType, mask byte) (int, bool) {
	if len(payload) == 0 || payload[0]&mask != byte(t)<<4 {
		return 0, false
	}
	h, err := mqtt.ParseFixedHeader(payload)
	if err != nil {
		return 0, false
	}
	return h.PacketLen(), true
}

func locateIPv4(frame []byte) (decoder.IPv4, bool) {
	// A malformed transport header does not invalidate the IPv4 view
	f, _ := decoder.Locate(frame)
	if f.IPv4 == nil {
		return nil, false
	}
	return f.IPv4, true
}

func udpValid(f decoder.Frame) bool {
	return checksum.Transport(f.IPv4.Source(), f.IPv4.Destination(), decoder.ProtocolUDP, f.UDP) == 0
}
