package node

import (
	"time"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/eventbus"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/metrics"
	"firestige.xyz/ethmqtt/internal/mqtt"
	"firestige.xyz/ethmqtt/internal/session"
)

// handleMQTT processes every complete MQTT packet in an in-order TCP payload.
// Packets are recognized with the classifier's MQTT predicates.
func (n *Node) handleMQTT(payload []byte) {
	logger := log.GetLogger()
	for len(payload) > 0 {
		size, ok := n.cls.MQTTPacketLen(payload)
		if !ok {
			n.drop("mqtt_truncated")
			logger.WithField("remaining", len(payload)).Debug("Discarding incomplete MQTT packet")
			return
		}
		pkt := payload[:size]
		payload = payload[size:]
		t := mqtt.TypeOf(pkt)
		metrics.MQTTMessagesTotal.WithLabelValues(metrics.DirectionIn, t.String()).Inc()

		if n.cls.MQTTConnectAck(pkt) {
			n.mqttUp = true
			logger.Info("MQTT session established")
			continue
		}
		if _, ok := n.cls.MQTTPublish(pkt); ok {
			n.receivePublish(pkt)
			continue
		}
		if _, ok := n.cls.MQTTSubAck(pkt); ok {
			id, codes, err := mqtt.ParseSuback(pkt)
			if err != nil {
				logger.WithError(err).Warn("Malformed SUBACK")
				continue
			}
			logger.WithFields(map[string]interface{}{"id": id, "codes": codes}).Info("Subscription acknowledged")
			continue
		}
		if _, ok := n.cls.MQTTUnsubAck(pkt); ok {
			id, err := mqtt.ParseUnsuback(pkt)
			if err != nil {
				logger.WithError(err).Warn("Malformed UNSUBACK")
				continue
			}
			logger.WithField("id", id).Info("Unsubscription acknowledged")
			continue
		}

		switch t {
		case mqtt.Connack:
			_, rc, err := mqtt.ParseConnack(pkt)
			if err != nil {
				logger.WithError(err).Warn("Malformed CONNACK")
				continue
			}
			logger.WithField("rc", mqtt.ReturnCodeText(rc)).Warn("Broker rejected MQTT session")
		case mqtt.Pingresp:
			logger.Debug("PINGRESP")
		default:
			logger.WithField("type", t.String()).Debug("Ignoring MQTT packet")
		}
	}
}

func (n *Node) receivePublish(pkt []byte) {
	logger := log.GetLogger()
	msg, err := mqtt.ParsePublish(pkt)
	if err != nil {
		logger.WithError(err).Warn("Malformed PUBLISH")
		return
	}
	n.stats.MessagesReceived++
	topic := string(msg.Topic)
	logger.WithFields(map[string]interface{}{"topic": topic, "qos": msg.QoS}).
		Debugf("Received message %q", msg.Data)
	n.publish(eventbus.TopicMQTTMessage, topic, eventbus.Message{
		Topic: topic,
		Data:  append([]byte(nil), msg.Data...),
	})
}

type encodeFunc func() (int, error)

// sendMQTT encodes one packet into scratch and sends it as a PSH-ACK on the
// active connection.
func (n *Node) sendMQTT(t mqtt.ControlType, encode encodeFunc) error {
	if n.machine.State() != session.StateTCPConnectionActive {
		return core.ErrNotConnected
	}
	size, err := encode()
	if err != nil {
		return err
	}
	n.lastSent = n.opts.Now()
	if err := n.sent("tcp_psh_ack", n.segment(decoder.TCPFlagsPSHACK, n.scratch[:size])); err != nil {
		return err
	}
	n.cfg.AdvanceSeq(uint32(size))
	metrics.MQTTMessagesTotal.WithLabelValues(metrics.DirectionOut, t.String()).Inc()
	return nil
}

func (n *Node) keepAlive(now time.Time) {
	if !n.mqttUp || n.opts.KeepAlive <= 0 || now.Sub(n.lastSent) < n.opts.KeepAlive {
		return
	}
	if err := n.sendMQTT(mqtt.Pingreq, n.enc.Pingreq); err != nil {
		log.GetLogger().WithError(err).Debug("Keep-alive not sent")
	}
}
