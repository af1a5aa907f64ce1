// Package mqtt speaks the subset of MQTT 3.1.1 the node needs on top of
// github.com/soypat/natiu-mqtt. Packets are written into a fixed buffer and
// decoded from the segment payload in place.
package mqtt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	natiu "github.com/soypat/natiu-mqtt"

	"firestige.xyz/ethmqtt/internal/core"
)

// ControlType is the 4 MSB bits of the first fixed header byte.
type ControlType uint8

const (
	Connect     = ControlType(natiu.PacketConnect)
	Connack     = ControlType(natiu.PacketConnack)
	Publish     = ControlType(natiu.PacketPublish)
	Puback      = ControlType(natiu.PacketPuback)
	Pubrec      = ControlType(natiu.PacketPubrec)
	Pubrel      = ControlType(natiu.PacketPubrel)
	Pubcomp     = ControlType(natiu.PacketPubcomp)
	Subscribe   = ControlType(natiu.PacketSubscribe)
	Suback      = ControlType(natiu.PacketSuback)
	Unsubscribe = ControlType(natiu.PacketUnsubscribe)
	Unsuback    = ControlType(natiu.PacketUnsuback)
	Pingreq     = ControlType(natiu.PacketPingreq)
	Pingresp    = ControlType(natiu.PacketPingresp)
	Disconnect  = ControlType(natiu.PacketDisconnect)
)

var typeNames = [...]string{
	Connect:     "CONNECT",
	Connack:     "CONNACK",
	Publish:     "PUBLISH",
	Puback:      "PUBACK",
	Pubrec:      "PUBREC",
	Pubrel:      "PUBREL",
	Pubcomp:     "PUBCOMP",
	Subscribe:   "SUBSCRIBE",
	Suback:      "SUBACK",
	Unsubscribe: "UNSUBSCRIBE",
	Unsuback:    "UNSUBACK",
	Pingreq:     "PINGREQ",
	Pingresp:    "PINGRESP",
	Disconnect:  "DISCONNECT",
}

func (t ControlType) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("RESERVED(%d)", uint8(t))
}

// TypeOf returns the control type of the packet starting at b, or zero.
func TypeOf(b []byte) ControlType {
	if len(b) == 0 {
		return 0
	}
	return ControlType(b[0] >> 4)
}

// ConnectReturnCode is the second byte of the CONNACK variable header.
type ConnectReturnCode = natiu.ConnectReturnCode

const (
	ReturnCodeAccepted     = natiu.ReturnCodeConnAccepted
	ReturnCodeUnauthorized = natiu.ReturnCodeUnauthorized
)

var returnCodeText = [...]string{
	"accepted",
	"unacceptable protocol version",
	"identifier rejected",
	"server unavailable",
	"bad user name or password",
	"not authorized",
}

// ReturnCodeText describes a CONNACK return code.
func ReturnCodeText(rc ConnectReturnCode) string {
	if int(rc) < len(returnCodeText) {
		return returnCodeText[rc]
	}
	return fmt.Sprintf("return code %d", uint8(rc))
}

var (
	ErrEmptyTopic       = errors.New("ethmqtt: empty mqtt topic")
	ErrTopicTooLong     = errors.New("ethmqtt: mqtt topic longer than 65535 bytes")
	ErrRemainingLength  = errors.New("ethmqtt: malformed mqtt fixed header")
	ErrUnexpectedPacket = errors.New("ethmqtt: unexpected mqtt control packet")
)

// FixedHeader is the decoded first bytes of every control packet.
type FixedHeader struct {
	Type            ControlType
	Flags           uint8
	RemainingLength int
	HeaderLen       int // type byte plus remaining length bytes
}

// PacketLen is the length of the whole control packet.
func (h FixedHeader) PacketLen() int {
	return h.HeaderLen + h.RemainingLength
}

// ParseFixedHeader decodes the type byte and the variable-length remaining
// length. It does not require the rest of the packet to be present.
func ParseFixedHeader(b []byte) (FixedHeader, error) {
	if len(b) < 2 {
		return FixedHeader{}, core.ErrPacketTooShort
	}
	hdr, n, err := natiu.DecodeHeader(bytes.NewReader(b))
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return FixedHeader{}, core.ErrPacketTooShort
	case err != nil:
		return FixedHeader{}, fmt.Errorf("%w: %v", ErrRemainingLength, err)
	}
	return FixedHeader{
		Type:            ControlType(hdr.Type()),
		Flags:           uint8(hdr.Flags()),
		RemainingLength: int(hdr.RemainingLength),
		HeaderLen:       n,
	}, nil
}

func checkTopic(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if len(topic) > 0xFFFF {
		return ErrTopicTooLong
	}
	return nil
}
