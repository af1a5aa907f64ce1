package decoder

import (
	"encoding/binary"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/checksum"
)

const (
	ICMPHeaderLen = 8

	ICMPTypeEchoReply   = 0
	ICMPTypeEchoRequest = 8
)

// ICMP is a view over an ICMP message.
type ICMP []byte

// ParseICMP validates that b holds at least the 8 byte echo header.
func ParseICMP(b []byte) (ICMP, error) {
	if len(b) < ICMPHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	return ICMP(b), nil
}

func (i ICMP) Type() uint8            { return i[0] }
func (i ICMP) Code() uint8            { return i[1] }
func (i ICMP) Checksum() uint16       { return binary.BigEndian.Uint16(i[2:4]) }
func (i ICMP) Identifier() uint16     { return binary.BigEndian.Uint16(i[4:6]) }
func (i ICMP) SequenceNumber() uint16 { return binary.BigEndian.Uint16(i[6:8]) }
func (i ICMP) Data() []byte           { return i[ICMPHeaderLen:] }

func (i ICMP) SetType(t uint8) { i[0] = t }

// CalculateChecksum recomputes the checksum over the whole message.
func (i ICMP) CalculateChecksum() {
	binary.BigEndian.PutUint16(i[2:4], 0)
	binary.BigEndian.PutUint16(i[2:4], checksum.Checksum(i))
}
