package mqtt

import (
	natiu "github.com/soypat/natiu-mqtt"

	"firestige.xyz/ethmqtt/internal/core"
)

const (
	// ConnectLen is the length of the CONNECT packet built by Connect.
	ConnectLen = 17

	// ClientID is the fixed client identifier announced in CONNECT.
	ClientID = "rbv"

	// KeepAliveSeconds is announced in CONNECT.
	KeepAliveSeconds = 60

	// Packet identifier used for SUBSCRIBE and UNSUBSCRIBE.
	subscriptionPacketID = 0x000C
)

// fixedWriter is the transport under natiu.Tx: it appends to a slice that
// never grows and remembers the first overflow.
type fixedWriter struct {
	buf []byte
	n   int
	err error
}

func (w *fixedWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if len(p) > len(w.buf)-w.n {
		w.err = core.ErrBufferTooSmall
		return 0, w.err
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

func (w *fixedWriter) Close() error { return nil }

// Encoder writes control packets to the start of one buffer. Every method
// overwrites the previous packet and returns the new packet length.
type Encoder struct {
	tx  natiu.Tx
	out fixedWriter
}

// NewEncoder creates an Encoder writing into dst.
func NewEncoder(dst []byte) *Encoder {
	return &Encoder{out: fixedWriter{buf: dst}}
}

func (e *Encoder) encode(write func(tx *natiu.Tx) error) (int, error) {
	e.out.n, e.out.err = 0, nil
	e.tx.SetTxTransport(&e.out)
	err := write(&e.tx)
	if e.out.err != nil {
		return 0, e.out.err
	}
	if err != nil {
		return 0, err
	}
	return e.out.n, nil
}

// Connect writes the 17 byte CONNECT packet: protocol "MQTT" level 4,
// clean session, keep-alive 60 s and client identifier "rbv".
func (e *Encoder) Connect() (int, error) {
	var vc natiu.VariablesConnect
	vc.SetDefaultMQTT([]byte(ClientID))
	vc.KeepAlive = KeepAliveSeconds
	vc.CleanSession = true
	return e.encode(func(tx *natiu.Tx) error { return tx.WriteConnect(&vc) })
}

// Subscribe writes a SUBSCRIBE for one topic filter at QoS 0.
func (e *Encoder) Subscribe(topic string) (int, error) {
	if err := checkTopic(topic); err != nil {
		return 0, err
	}
	vs := natiu.VariablesSubscribe{
		PacketIdentifier: subscriptionPacketID,
		TopicFilters: []natiu.SubscribeRequest{
			{TopicFilter: []byte(topic), QoS: natiu.QoS0},
		},
	}
	return e.encode(func(tx *natiu.Tx) error { return tx.WriteSubscribe(vs) })
}

// Unsubscribe writes an UNSUBSCRIBE for one topic filter.
func (e *Encoder) Unsubscribe(topic string) (int, error) {
	if err := checkTopic(topic); err != nil {
		return 0, err
	}
	vu := natiu.VariablesUnsubscribe{
		PacketIdentifier: subscriptionPacketID,
		Topics:           [][]byte{[]byte(topic)},
	}
	return e.encode(func(tx *natiu.Tx) error { return tx.WriteUnsubscribe(vu) })
}

// Publish writes a QoS 0 PUBLISH: topic name followed by the application
// message.
func (e *Encoder) Publish(topic string, data []byte) (int, error) {
	if err := checkTopic(topic); err != nil {
		return 0, err
	}
	hdr, err := natiu.NewHeader(natiu.PacketPublish, 0, uint32(2+len(topic)+len(data)))
	if err != nil {
		return 0, err
	}
	vp := natiu.VariablesPublish{TopicName: []byte(topic)}
	return e.encode(func(tx *natiu.Tx) error { return tx.WritePublishPayload(hdr, vp, data) })
}

// PublishLegacy writes the legacy device PUBLISH layout, which inserts two
// bytes (0x10 and 0x11+len(topic)) between the topic and the message.
// Brokers read those bytes as the start of the message.
func (e *Encoder) PublishLegacy(topic string, data []byte) (int, error) {
	if err := checkTopic(topic); err != nil {
		return 0, err
	}
	message := make([]byte, 0, 2+len(data))
	message = append(message, 0x10, byte(0x11+len(topic)))
	return e.Publish(topic, append(message, data...))
}

// Disconnect writes E0 00.
func (e *Encoder) Disconnect() (int, error) {
	return e.encode(func(tx *natiu.Tx) error { return tx.WriteSimple(natiu.PacketDisconnect) })
}

// Pingreq writes C0 00.
func (e *Encoder) Pingreq() (int, error) {
	return e.encode(func(tx *natiu.Tx) error { return tx.WriteSimple(natiu.PacketPingreq) })
}
