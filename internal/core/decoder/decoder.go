package decoder

import (
	"firestige.xyz/ethmqtt/internal/core"
)

// Frame holds the views located inside one received frame. Views of absent
// layers are nil and their offsets are zero.
type Frame struct {
	Ethernet Ethernet
	ARP      ARP
	IPv4     IPv4
	ICMP     ICMP
	UDP      UDP
	TCP      TCP

	// Offsets from the start of the frame
	NetworkOffset   int
	TransportOffset int
	PayloadOffset   int
}

// Locate validates the nested layout of b and returns the views it contains.
// Every nested offset is derived from a length field that was checked first.
// Frames with an EtherType other than IPv4 or ARP, and IPv4 datagrams carrying
// another protocol, are returned without error so callers can decide.
func Locate(b []byte) (Frame, error) {
	var f Frame

	eth, err := ParseEthernet(b)
	if err != nil {
		return f, err
	}
	f.Ethernet = eth
	f.NetworkOffset = EthernetHeaderLen

	switch eth.EtherType() {
	case EtherTypeARP:
		arp, err := ParseARP(eth.Payload())
		if err != nil {
			return f, err
		}
		f.ARP = arp
		return f, nil
	case EtherTypeIPv4:
	default:
		return f, nil
	}

	ip, err := ParseIPv4(eth.Payload())
	if err != nil {
		return f, err
	}
	f.IPv4 = ip
	f.TransportOffset = f.NetworkOffset + ip.HeaderLength()

	switch ip.Protocol() {
	case ProtocolICMP:
		icmp, err := ParseICMP(ip.Payload())
		if err != nil {
			return f, err
		}
		f.ICMP = icmp
		f.PayloadOffset = f.TransportOffset + ICMPHeaderLen
	case ProtocolUDP:
		udp, err := ParseUDP(ip.Payload())
		if err != nil {
			return f, err
		}
		f.UDP = udp
		f.PayloadOffset = f.TransportOffset + UDPHeaderLen
	case ProtocolTCP:
		tcp, err := ParseTCP(ip.Payload())
		if err != nil {
			return f, err
		}
		f.TCP = tcp
		f.PayloadOffset = f.TransportOffset + tcp.HeaderLength()
	}
	return f, nil
}

// Decode produces a flat summary of b for logging and capture output.
func Decode(b []byte) (core.DecodedFrame, error) {
	var d core.DecodedFrame

	f, err := Locate(b)
	if f.Ethernet != nil {
		d.DstMAC = f.Ethernet.Destination()
		d.SrcMAC = f.Ethernet.Source()
		d.EtherType = f.Ethernet.EtherType()
	}
	if f.ARP != nil {
		d.ARPOp = f.ARP.Op()
		d.SrcIP = f.ARP.SenderIP()
		d.DstIP = f.ARP.TargetIP()
	}
	if f.IPv4 != nil {
		d.SrcIP = f.IPv4.Source()
		d.DstIP = f.IPv4.Destination()
		d.Protocol = f.IPv4.Protocol()
		d.TTL = f.IPv4.TTL()
		d.TotalLen = f.IPv4.TotalLength()
	}
	switch {
	case f.UDP != nil:
		d.SrcPort = f.UDP.SourcePort()
		d.DstPort = f.UDP.DestinationPort()
		d.PayloadLen = len(f.UDP.Payload())
	case f.TCP != nil:
		d.SrcPort = f.TCP.SourcePort()
		d.DstPort = f.TCP.DestinationPort()
		d.TCPFlags = uint16(f.TCP.Flags())
		d.SeqNum = f.TCP.SequenceNumber()
		d.AckNum = f.TCP.AckNumber()
		d.PayloadLen = len(f.TCP.Payload())
	case f.ICMP != nil:
		d.PayloadLen = len(f.ICMP.Data())
	}
	return d, err
}
