package decoder

import (
	"encoding/binary"
	"strings"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/checksum"
)

const (
	UDPHeaderLen    = 8
	TCPHeaderMinLen = 20
)

// UDP is a view over a UDP datagram, bounded by its Length field.
type UDP []byte

// ParseUDP validates the Length field against the available bytes.
func ParseUDP(b []byte) (UDP, error) {
	if len(b) < UDPHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	length := int(binary.BigEndian.Uint16(b[4:6]))
	if length < UDPHeaderLen || length > len(b) {
		return nil, core.ErrMalformedPacket
	}
	return UDP(b[:length]), nil
}

// SourcePort returns the source port (2 bytes at offset 0).
func (u UDP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(u[0:2])
}

// DestinationPort returns the destination port (2 bytes at offset 2).
func (u UDP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(u[2:4])
}

// Length returns the Length field, header included (2 bytes at offset 4).
func (u UDP) Length() uint16 {
	return binary.BigEndian.Uint16(u[4:6])
}

// Checksum returns the checksum field (2 bytes at offset 6).
func (u UDP) Checksum() uint16 {
	return binary.BigEndian.Uint16(u[6:8])
}

// Payload returns the datagram data.
func (u UDP) Payload() []byte {
	return u[UDPHeaderLen:]
}

func (u UDP) SetSourcePort(p uint16) {
	binary.BigEndian.PutUint16(u[0:2], p)
}

func (u UDP) SetDestinationPort(p uint16) {
	binary.BigEndian.PutUint16(u[2:4], p)
}

func (u UDP) SetLength(n uint16) {
	binary.BigEndian.PutUint16(u[4:6], n)
}

// CalculateChecksum recomputes the checksum over pseudo-header and datagram.
func (u UDP) CalculateChecksum(src, dst core.IPv4Addr) {
	binary.BigEndian.PutUint16(u[6:8], 0)
	binary.BigEndian.PutUint16(u[6:8], checksum.Transport(src, dst, ProtocolUDP, u))
}

// TCPFlags is the 12-bit flag field of a TCP header.
type TCPFlags uint16

const (
	TCPFlagFIN TCPFlags = 1 << 0
	TCPFlagSYN TCPFlags = 1 << 1
	TCPFlagRST TCPFlags = 1 << 2
	TCPFlagPSH TCPFlags = 1 << 3
	TCPFlagACK TCPFlags = 1 << 4
	TCPFlagURG TCPFlags = 1 << 5

	// Combinations the node sends or reacts to
	TCPFlagsSYN    = TCPFlagSYN
	TCPFlagsSYNACK = TCPFlagSYN | TCPFlagACK
	TCPFlagsACK    = TCPFlagACK
	TCPFlagsPSHACK = TCPFlagPSH | TCPFlagACK
	TCPFlagsFIN    = TCPFlagFIN
	TCPFlagsFINACK = TCPFlagFIN | TCPFlagACK
	TCPFlagsRST    = TCPFlagRST
	TCPFlagsRSTACK = TCPFlagRST | TCPFlagACK
)

// Has reports whether every bit of mask is set.
func (f TCPFlags) Has(mask TCPFlags) bool {
	return f&mask == mask
}

func (f TCPFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  TCPFlags
		name string
	}{
		{TCPFlagSYN, "SYN"}, {TCPFlagFIN, "FIN"}, {TCPFlagRST, "RST"},
		{TCPFlagPSH, "PSH"}, {TCPFlagACK, "ACK"}, {TCPFlagURG, "URG"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ (TCPFlagFIN | TCPFlagSYN | TCPFlagRST | TCPFlagPSH | TCPFlagACK | TCPFlagURG); rest != 0 {
		parts = append(parts, "ECN")
	}
	return strings.Join(parts, "-")
}

// TCP is a view over a TCP segment.
type TCP []byte

// ParseTCP validates the data offset against the available bytes.
func ParseTCP(b []byte) (TCP, error) {
	if len(b) < TCPHeaderMinLen {
		return nil, core.ErrPacketTooShort
	}
	// Data Offset is in 32-bit words (upper 4 bits at offset 12)
	headerLen := int(b[12]>>4) * 4
	if headerLen < TCPHeaderMinLen || headerLen > len(b) {
		return nil, core.ErrMalformedPacket
	}
	return TCP(b), nil
}

// SourcePort returns the source port (2 bytes at offset 0).
func (t TCP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(t[0:2])
}

// DestinationPort returns the destination port (2 bytes at offset 2).
func (t TCP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(t[2:4])
}

// SequenceNumber returns the sequence number (4 bytes at offset 4).
func (t TCP) SequenceNumber() uint32 {
	return binary.BigEndian.Uint32(t[4:8])
}

// AckNumber returns the acknowledgment number (4 bytes at offset 8).
func (t TCP) AckNumber() uint32 {
	return binary.BigEndian.Uint32(t[8:12])
}

// HeaderLength returns the data offset in bytes.
func (t TCP) HeaderLength() int {
	return int(t[12]>>4) * 4
}

// Flags returns the low 12 bits of the offset/flags word.
func (t TCP) Flags() TCPFlags {
	return TCPFlags(binary.BigEndian.Uint16(t[12:14]) & 0x0FFF)
}

// Window returns the receive window (2 bytes at offset 14).
func (t TCP) Window() uint16 {
	return binary.BigEndian.Uint16(t[14:16])
}

// Checksum returns the checksum field (2 bytes at offset 16).
func (t TCP) Checksum() uint16 {
	return binary.BigEndian.Uint16(t[16:18])
}

// Options returns the bytes between the fixed header and the data.
func (t TCP) Options() []byte {
	return t[TCPHeaderMinLen:t.HeaderLength()]
}

// Payload returns the segment data.
func (t TCP) Payload() []byte {
	return t[t.HeaderLength():]
}

// TCPFields holds the values written by Encode.
type TCPFields struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     uint32
	AckNum     uint32
	DataOffset uint8 // in 32-bit words
	Flags      TCPFlags
	Window     uint16
	Urgent     uint16
}

// Encode writes the fixed 20 byte header. The checksum field is zeroed.
func (t TCP) Encode(f *TCPFields) {
	binary.BigEndian.PutUint16(t[0:2], f.SrcPort)
	binary.BigEndian.PutUint16(t[2:4], f.DstPort)
	binary.BigEndian.PutUint32(t[4:8], f.SeqNum)
	binary.BigEndian.PutUint32(t[8:12], f.AckNum)
	binary.BigEndian.PutUint16(t[12:14], uint16(f.DataOffset)<<12|uint16(f.Flags&0x0FFF))
	binary.BigEndian.PutUint16(t[14:16], f.Window)
	binary.BigEndian.PutUint16(t[16:18], 0)
	binary.BigEndian.PutUint16(t[18:20], f.Urgent)
}

// CalculateChecksum recomputes the checksum over pseudo-header and segment.
func (t TCP) CalculateChecksum(src, dst core.IPv4Addr) {
	binary.BigEndian.PutUint16(t[16:18], 0)
	binary.BigEndian.PutUint16(t[16:18], checksum.Transport(src, dst, ProtocolTCP, t))
}
