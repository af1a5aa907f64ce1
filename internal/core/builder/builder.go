// Package builder writes outbound frames in place inside the packet buffer
// and hands them to the link transmitter.
//
// Reply builders (ARP, ICMP, UDP) expect buf to hold the received request,
// validated by the classifier, and overwrite it. TCPSegment ignores the
// previous contents of buf. No builder allocates.
package builder

import (
	"errors"
	"fmt"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/link"
	"firestige.xyz/ethmqtt/internal/netcfg"
)

const (
	DefaultTTL    = 128
	DefaultWindow = 1220

	// MSS option carried by SYN: kind 2, length 4, value 1220.
	mssOptionLen = 4
)

var mssOption = [mssOptionLen]byte{0x02, 0x04, 0x04, 0xC4}

// Builder constructs frames for the node identified by cfg.
type Builder struct {
	cfg *netcfg.Config
	tx  link.Transmitter
}

func New(cfg *netcfg.Config, tx link.Transmitter) *Builder {
	return &Builder{cfg: cfg, tx: tx}
}

func (b *Builder) send(frame []byte) error {
	if err := b.tx.TransmitFrame(frame); err != nil {
		return fmt.Errorf("transmit %d bytes: %w", len(frame), asAbort(err))
	}
	return nil
}

// asAbort makes sure a driver failure matches core.ErrTransmitAbort.
func asAbort(err error) error {
	if errors.Is(err, core.ErrTransmitAbort) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrTransmitAbort, err)
}

// ARPReply answers the ARP request in buf.
func (b *Builder) ARPReply(buf []byte) error {
	eth, arp, err := arpView(buf)
	if err != nil {
		return err
	}
	requester, requesterIP := arp.SenderHardwareAddr(), arp.SenderIP()

	eth.SetDestination(eth.Source())
	eth.SetSource(b.cfg.MAC())

	arp.SetOp(decoder.ARPOpReply)
	arp.SetTargetHardwareAddr(requester)
	arp.SetTargetIP(requesterIP)
	arp.SetSenderHardwareAddr(b.cfg.MAC())
	arp.SetSenderIP(b.cfg.IP())

	return b.send(buf[:decoder.EthernetHeaderLen+decoder.ARPLen])
}

// ARPRequest broadcasts a who-has for target.
func (b *Builder) ARPRequest(buf []byte, target core.IPv4Addr) error {
	eth, arp, err := arpView(buf)
	if err != nil {
		return err
	}

	eth.SetDestination(core.BroadcastHardwareAddr)
	eth.SetSource(b.cfg.MAC())
	eth.SetEtherType(decoder.EtherTypeARP)

	arp.SetIPv4OverEthernet()
	arp.SetOp(decoder.ARPOpRequest)
	arp.SetSenderHardwareAddr(b.cfg.MAC())
	arp.SetSenderIP(b.cfg.IP())
	arp.SetTargetHardwareAddr(core.HardwareAddr{})
	arp.SetTargetIP(target)

	return b.send(buf[:decoder.EthernetHeaderLen+decoder.ARPLen])
}

func arpView(buf []byte) (decoder.Ethernet, decoder.ARP, error) {
	if len(buf) < decoder.EthernetHeaderLen+decoder.ARPLen {
		return nil, nil, core.ErrBufferTooSmall
	}
	eth := decoder.Ethernet(buf)
	return eth, decoder.ARP(buf[decoder.EthernetHeaderLen:]), nil
}

// ICMPEchoReply turns the echo request in buf into its reply. Identifier,
// sequence number and data are left untouched.
func (b *Builder) ICMPEchoReply(buf []byte) error {
	f, err := decoder.Locate(buf)
	if err != nil {
		return err
	}
	if f.IPv4 == nil || f.ICMP == nil {
		return fmt.Errorf("echo reply: %w", core.ErrMalformedPacket)
	}

	f.Ethernet.SwapAddresses()
	f.IPv4.SwapAddresses()
	f.IPv4.CalculateChecksum()

	f.ICMP.SetType(decoder.ICMPTypeEchoReply)
	f.ICMP.CalculateChecksum()

	return b.send(buf[:decoder.EthernetHeaderLen+int(f.IPv4.TotalLength())])
}

// UDPReply answers the datagram in buf with payload. The reply leaves from
// the port the request was addressed to; the destination port is kept.
func (b *Builder) UDPReply(buf []byte, payload []byte) error {
	f, err := decoder.Locate(buf)
	if err != nil {
		return err
	}
	if f.IPv4 == nil || f.UDP == nil {
		return fmt.Errorf("udp reply: %w", core.ErrMalformedPacket)
	}

	udpLen := decoder.UDPHeaderLen + len(payload)
	ipLen := f.IPv4.HeaderLength() + udpLen
	if f.NetworkOffset+ipLen > len(buf) || ipLen > 0xFFFF {
		return core.ErrBufferTooSmall
	}

	f.Ethernet.SwapAddresses()

	ip := decoder.IPv4(buf[f.NetworkOffset : f.NetworkOffset+ipLen])
	ip.SwapAddresses()
	ip.SetTotalLength(uint16(ipLen))
	ip.CalculateChecksum()

	udp := decoder.UDP(buf[f.TransportOffset : f.TransportOffset+udpLen])
	udp.SetSourcePort(udp.DestinationPort())
	udp.SetLength(uint16(udpLen))
	copy(udp[decoder.UDPHeaderLen:], payload)
	udp.CalculateChecksum(ip.Source(), ip.Destination())

	return b.send(buf[:f.NetworkOffset+ipLen])
}

// TCPSegment writes a segment towards sock using the connection's current
// sequence and acknowledgment numbers. A SYN starts a new connection and
// zeroes both. Payload is only carried by PSH-ACK.
func (b *Builder) TCPSegment(buf []byte, sock netcfg.Socket, flags decoder.TCPFlags, payload []byte) error {
	var optLen int
	switch flags {
	case decoder.TCPFlagsSYN:
		b.cfg.ResetSequence()
		optLen = mssOptionLen
		payload = nil
	case decoder.TCPFlagsACK, decoder.TCPFlagsFINACK, decoder.TCPFlagsRST,
		decoder.TCPFlagsRSTACK, decoder.TCPFlagsFIN:
		payload = nil
	case decoder.TCPFlagsPSHACK:
	default:
		return fmt.Errorf("%w: %s", core.ErrUnsupportedFlags, flags)
	}

	tcpLen := decoder.TCPHeaderMinLen + optLen + len(payload)
	ipLen := decoder.IPv4HeaderMinLen + tcpLen
	frameLen := decoder.EthernetHeaderLen + ipLen
	if frameLen > len(buf) {
		return core.ErrBufferTooSmall
	}

	eth := decoder.Ethernet(buf[:frameLen])
	eth.SetDestination(sock.DstMAC)
	eth.SetSource(sock.SrcMAC)
	eth.SetEtherType(decoder.EtherTypeIPv4)

	ip := decoder.IPv4(buf[decoder.EthernetHeaderLen:frameLen])
	ip.Encode(&decoder.IPv4Fields{
		TotalLength: uint16(ipLen),
		ID:          b.cfg.NextID(),
		TTL:         DefaultTTL,
		Protocol:    decoder.ProtocolTCP,
		Src:         sock.SrcIP,
		Dst:         sock.DstIP,
	})
	ip.CalculateChecksum()

	tcp := decoder.TCP(ip[decoder.IPv4HeaderMinLen:])
	tcp.Encode(&decoder.TCPFields{
		SrcPort:    sock.SrcPort,
		DstPort:    sock.DstPort,
		SeqNum:     b.cfg.Seq(),
		AckNum:     b.cfg.Ack(),
		DataOffset: uint8((decoder.TCPHeaderMinLen + optLen) / 4),
		Flags:      flags,
		Window:     DefaultWindow,
	})
	if optLen > 0 {
		copy(tcp[decoder.TCPHeaderMinLen:], mssOption[:])
	}
	copy(tcp[decoder.TCPHeaderMinLen+optLen:], payload)
	tcp.CalculateChecksum(sock.SrcIP, sock.DstIP)

	return b.send(buf[:frameLen])
}

// SequenceLen is how far a segment with flags and n payload bytes moves the
// sender's sequence number.
func SequenceLen(flags decoder.TCPFlags, n int) uint32 {
	l := uint32(n)
	if flags.Has(decoder.TCPFlagSYN) {
		l++
	}
	if flags.Has(decoder.TCPFlagFIN) {
		l++
	}
	return l
}
