// Package testutil builds reference frames with gopacket for package tests.
package testutil

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/ethmqtt/internal/core"
)

// Addresses used across tests. Local mirrors the node defaults.
var (
	LocalMAC  = core.HardwareAddr{0x02, 0x03, 0x04, 0x05, 0x06, 0x70}
	LocalIP   = core.IPv4Addr{192, 168, 1, 112}
	BrokerMAC = core.HardwareAddr{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	BrokerIP  = core.IPv4Addr{192, 168, 1, 1}
	OtherMAC  = core.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	OtherIP   = core.IPv4Addr{192, 168, 1, 50}
)

// Endpoint is one side of a test conversation.
type Endpoint struct {
	MAC core.HardwareAddr
	IP  core.IPv4Addr
}

var (
	Local  = Endpoint{MAC: LocalMAC, IP: LocalIP}
	Broker = Endpoint{MAC: BrokerMAC, IP: BrokerIP}
	Other  = Endpoint{MAC: OtherMAC, IP: OtherIP}
)

func mac(hw core.HardwareAddr) net.HardwareAddr {
	return net.HardwareAddr(append([]byte(nil), hw[:]...))
}

func ip4(a core.IPv4Addr) net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3]).To4()
}

// Serialize encodes layers with lengths and checksums fixed up. Ethernet
// frames shorter than 60 bytes are padded by gopacket.
func Serialize(l ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		panic(err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

func ethernet(src, dst core.HardwareAddr, t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: mac(src), DstMAC: mac(dst), EthernetType: t}
}

func ipv4(src, dst core.IPv4Addr, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    ip4(src),
		DstIP:    ip4(dst),
	}
}

// ARPRequest is a broadcast who-has for target sent by from.
func ARPRequest(from Endpoint, target core.IPv4Addr) []byte {
	return Serialize(
		ethernet(from.MAC, core.BroadcastHardwareAddr, layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   mac(from.MAC),
			SourceProtAddress: ip4(from.IP),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    ip4(target),
		},
	)
}

// ARPReply is from's answer to to.
func ARPReply(from, to Endpoint) []byte {
	return Serialize(
		ethernet(from.MAC, to.MAC, layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPReply,
			SourceHwAddress:   mac(from.MAC),
			SourceProtAddress: ip4(from.IP),
			DstHwAddress:      mac(to.MAC),
			DstProtAddress:    ip4(to.IP),
		},
	)
}

// EchoRequest is an ICMP echo request carrying data.
func EchoRequest(from, to Endpoint, id, seq uint16, data []byte) []byte {
	return Serialize(
		ethernet(from.MAC, to.MAC, layers.EthernetTypeIPv4),
		ipv4(from.IP, to.IP, layers.IPProtocolICMPv4),
		&layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       id,
			Seq:      seq,
		},
		gopacket.Payload(data),
	)
}

// UDP is a datagram with a valid checksum.
func UDP(from, to Endpoint, srcPort, dstPort uint16, data []byte) []byte {
	ip := ipv4(from.IP, to.IP, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return Serialize(ethernet(from.MAC, to.MAC, layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(data))
}

// Segment describes a TCP segment for TCP.
type Segment struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	SYN, ACK, PSH    bool
	FIN, RST         bool
	Payload          []byte
}

// TCP is a segment with a valid checksum.
func TCP(from, to Endpoint, s Segment) []byte {
	ip := ipv4(from.IP, to.IP, layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     s.Seq,
		Ack:     s.Ack,
		SYN:     s.SYN,
		ACK:     s.ACK,
		PSH:     s.PSH,
		FIN:     s.FIN,
		RST:     s.RST,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return Serialize(ethernet(from.MAC, to.MAC, layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(s.Payload))
}

// Decode parses a frame with gopacket for assertions on built output.
func Decode(frame []byte) gopacket.Packet {
	return gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
}
