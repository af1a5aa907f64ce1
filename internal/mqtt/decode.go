package mqtt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	natiu "github.com/soypat/natiu-mqtt"

	"firestige.xyz/ethmqtt/internal/core"
)

// Message is a decoded PUBLISH. Data aliases the input buffer.
type Message struct {
	Topic    []byte
	Data     []byte
	QoS      uint8
	Retain   bool
	Dup      bool
	PacketID uint16 // only for QoS > 0
}

// header parses the fixed header and checks that the whole packet is present.
func header(b []byte, want ControlType) (FixedHeader, error) {
	h, err := ParseFixedHeader(b)
	if err != nil {
		return h, err
	}
	if h.Type != want {
		return h, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedPacket, h.Type, want)
	}
	if len(b) < h.PacketLen() {
		return h, core.ErrPacketTooShort
	}
	return h, nil
}

// ParsePublish decodes a PUBLISH packet.
func ParsePublish(b []byte) (Message, error) {
	h, err := header(b, Publish)
	if err != nil {
		return Message{}, err
	}
	body := b[h.HeaderLen:h.PacketLen()]

	qos := natiu.QoSLevel((h.Flags >> 1) & 0x03)
	r := bytes.NewReader(body)
	dec := natiu.DecoderNoAlloc{UserBuffer: make([]byte, len(body))}
	vp, _, err := dec.DecodePublish(r, qos)
	if err != nil {
		return Message{}, fmt.Errorf("%w: publish: %v", core.ErrMalformedPacket, err)
	}
	return Message{
		Topic:    vp.TopicName,
		Data:     body[len(body)-r.Len():],
		QoS:      uint8(qos),
		Retain:   h.Flags&0x01 != 0,
		Dup:      h.Flags&0x08 != 0,
		PacketID: vp.PacketIdentifier,
	}, nil
}

// ParseConnack decodes a CONNACK packet.
func ParseConnack(b []byte) (sessionPresent bool, rc ConnectReturnCode, err error) {
	h, err := header(b, Connack)
	if err != nil {
		return false, 0, err
	}
	if h.RemainingLength != 2 {
		return false, 0, core.ErrMalformedPacket
	}
	body := b[h.HeaderLen:]
	return body[0]&0x01 != 0, ConnectReturnCode(body[1]), nil
}

// ConnackAccepted reports whether b starts with a CONNACK accepting the
// session. With legacy set the return code is read from the first variable
// header byte, where older brokers placed it.
func ConnackAccepted(b []byte, legacy bool) bool {
	if len(b) < 4 || TypeOf(b) != Connack || b[1] != 2 {
		return false
	}
	code := b[3]
	if legacy {
		code = b[2]
	}
	return ConnectReturnCode(code) == ReturnCodeAccepted
}

// ParseSuback decodes a SUBACK packet. The return codes alias b.
func ParseSuback(b []byte) (packetID uint16, codes []byte, err error) {
	h, err := header(b, Suback)
	if err != nil {
		return 0, nil, err
	}
	if h.RemainingLength < 3 {
		return 0, nil, core.ErrMalformedPacket
	}
	body := b[h.HeaderLen:h.PacketLen()]
	return binary.BigEndian.Uint16(body[0:2]), body[2:], nil
}

// ParseUnsuback decodes an UNSUBACK packet.
func ParseUnsuback(b []byte) (packetID uint16, err error) {
	h, err := header(b, Unsuback)
	if err != nil {
		return 0, err
	}
	if h.RemainingLength != 2 {
		return 0, core.ErrMalformedPacket
	}
	return binary.BigEndian.Uint16(b[h.HeaderLen:]), nil
}
