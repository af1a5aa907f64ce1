package eventbus

import (
	"context"
)

// Topics published by the node.
const (
	TopicSessionState = "session.state"
	TopicMQTTMessage  = "mqtt.message"
	TopicLinkOverflow = "link.overflow"
)

// Event is one published item. Key selects the partition, so events with
// the same key are handled in publish order.
type Event struct {
	Topic   string      `json:"topic"`
	Key     string      `json:"key"`
	Payload interface{} `json:"payload"`
}

// Handler processes an event on a partition goroutine.
type Handler func(event *Event) error

// StateChange is the payload of TopicSessionState.
type StateChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Message is the payload of TopicMQTTMessage. Topic and Data are copies
// that outlive the packet buffer.
type Message struct {
	Topic string `json:"topic"`
	Data  []byte `json:"data"`
}

// Overflow is the payload of TopicLinkOverflow.
type Overflow struct {
	Total uint64 `json:"total"`
}

type partition struct {
	id     int
	queue  chan *Event
	ctx    context.Context
	cancel context.CancelFunc
}
