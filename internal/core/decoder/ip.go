package decoder

import (
	"encoding/binary"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/checksum"
)

const (
	IPv4HeaderMinLen = 20

	// Protocol numbers
	ProtocolICMP = 1
	ProtocolTCP  = 6
	ProtocolUDP  = 17
)

// IPv4 is a view over an IPv4 datagram. The view ends at the total length
// declared in the header, so link-layer padding is excluded.
type IPv4 []byte

// ParseIPv4 validates version, header length and total length before
// returning the view.
func ParseIPv4(b []byte) (IPv4, error) {
	if len(b) < IPv4HeaderMinLen {
		return nil, core.ErrPacketTooShort
	}
	if b[0]>>4 != 4 {
		return nil, core.ErrUnsupportedProto
	}

	// IHL is in 32-bit words
	headerLen := int(b[0]&0x0F) * 4
	if headerLen < IPv4HeaderMinLen || headerLen > len(b) {
		return nil, core.ErrMalformedPacket
	}

	totalLen := int(binary.BigEndian.Uint16(b[2:4]))
	if totalLen < headerLen || totalLen > len(b) {
		return nil, core.ErrMalformedPacket
	}
	return IPv4(b[:totalLen]), nil
}

// HeaderLength returns the header length in bytes.
func (ip IPv4) HeaderLength() int {
	return int(ip[0]&0x0F) * 4
}

// TotalLength returns the Total Length field (2 bytes at offset 2).
func (ip IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(ip[2:4])
}

// ID returns the Identification field (2 bytes at offset 4).
func (ip IPv4) ID() uint16 {
	return binary.BigEndian.Uint16(ip[4:6])
}

// TTL returns the Time To Live (1 byte at offset 8).
func (ip IPv4) TTL() uint8 {
	return ip[8]
}

// Protocol returns the transport protocol (1 byte at offset 9).
func (ip IPv4) Protocol() uint8 {
	return ip[9]
}

// Checksum returns the header checksum (2 bytes at offset 10).
func (ip IPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(ip[10:12])
}

// Source returns the source address (4 bytes at offset 12).
func (ip IPv4) Source() core.IPv4Addr {
	return core.IPv4Addr(ip[12:16])
}

// Destination returns the destination address (4 bytes at offset 16).
func (ip IPv4) Destination() core.IPv4Addr {
	return core.IPv4Addr(ip[16:20])
}

// Header returns the header bytes including options.
func (ip IPv4) Header() []byte {
	return ip[:ip.HeaderLength()]
}

// Payload returns the bytes after the header up to the total length.
func (ip IPv4) Payload() []byte {
	return ip[ip.HeaderLength():]
}

// IsChecksumValid reports whether the header checksum folds to zero.
func (ip IPv4) IsChecksumValid() bool {
	return checksum.Valid(ip.Header())
}

// IPv4Fields holds the values written by Encode.
type IPv4Fields struct {
	TOS         uint8
	TotalLength uint16
	ID          uint16
	Flags       uint16 // flags and fragment offset
	TTL         uint8
	Protocol    uint8
	Src         core.IPv4Addr
	Dst         core.IPv4Addr
}

// Encode writes a 20 byte header without options. The checksum field is
// zeroed; call CalculateChecksum afterwards.
func (ip IPv4) Encode(f *IPv4Fields) {
	ip[0] = 0x45
	ip[1] = f.TOS
	binary.BigEndian.PutUint16(ip[2:4], f.TotalLength)
	binary.BigEndian.PutUint16(ip[4:6], f.ID)
	binary.BigEndian.PutUint16(ip[6:8], f.Flags)
	ip[8] = f.TTL
	ip[9] = f.Protocol
	binary.BigEndian.PutUint16(ip[10:12], 0)
	copy(ip[12:16], f.Src[:])
	copy(ip[16:20], f.Dst[:])
}

func (ip IPv4) SetTotalLength(n uint16) {
	binary.BigEndian.PutUint16(ip[2:4], n)
}

func (ip IPv4) SetSource(a core.IPv4Addr) {
	copy(ip[12:16], a[:])
}

func (ip IPv4) SetDestination(a core.IPv4Addr) {
	copy(ip[16:20], a[:])
}

// SwapAddresses exchanges source and destination addresses.
func (ip IPv4) SwapAddresses() {
	src, dst := ip.Source(), ip.Destination()
	ip.SetSource(dst)
	ip.SetDestination(src)
}

// CalculateChecksum recomputes the header checksum over the header only.
func (ip IPv4) CalculateChecksum() {
	binary.BigEndian.PutUint16(ip[10:12], 0)
	binary.BigEndian.PutUint16(ip[10:12], checksum.Checksum(ip.Header()))
}
