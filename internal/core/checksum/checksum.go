// Package checksum implements the RFC 1071 Internet checksum shared by IPv4, ICMP, UDP and TCP.
package checksum

import (
	"encoding/binary"

	"firestige.xyz/ethmqtt/internal/core"
)

// PseudoHeaderLen is the size of the TCP/UDP pseudo-header.
const PseudoHeaderLen = 12

// Accumulate adds b to sum as big-endian 16-bit words.
// A trailing odd byte is added in the high-order position.
func Accumulate(b []byte, sum uint32) uint32 {
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)&1 != 0 {
		sum += uint32(b[len(b)-1]) << 8
	}
	return sum
}

// Fold folds carries back into the low 16 bits until none remain and
// returns the one's complement.
func Fold(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Checksum returns the Internet checksum of b.
func Checksum(b []byte) uint16 {
	return Fold(Accumulate(b, 0))
}

// PseudoHeader adds the TCP/UDP pseudo-header (source IP, destination IP,
// zero, protocol, segment length) to sum.
func PseudoHeader(sum uint32, src, dst core.IPv4Addr, proto uint8, length uint16) uint32 {
	sum = Accumulate(src[:], sum)
	sum = Accumulate(dst[:], sum)
	sum += uint32(proto)
	sum += uint32(length)
	return sum
}

// Transport returns the checksum of a TCP segment or UDP datagram including
// its pseudo-header. The checksum field inside segment must be zero when
// computing and left intact when verifying.
func Transport(src, dst core.IPv4Addr, proto uint8, segment []byte) uint16 {
	sum := PseudoHeader(0, src, dst, proto, uint16(len(segment)))
	return Fold(Accumulate(segment, sum))
}

// Valid reports whether a region carrying its own checksum folds to zero.
func Valid(b []byte) bool {
	return Checksum(b) == 0
}
