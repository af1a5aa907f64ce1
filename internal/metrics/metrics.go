// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts received frames by classification
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethmqtt_frames_received_total",
			Help: "Total number of frames received, by classification",
		},
		[]string{"kind"},
	)

	// FramesDroppedTotal counts received frames that were silently dropped
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethmqtt_frames_dropped_total",
			Help: "Total number of received frames dropped",
		},
		[]string{"reason"},
	)

	// FramesTransmittedTotal counts transmitted frames by message type
	FramesTransmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethmqtt_frames_transmitted_total",
			Help: "Total number of frames transmitted",
		},
		[]string{"kind"},
	)

	// TransmitAbortsTotal counts transmits the driver failed
	TransmitAbortsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ethmqtt_transmit_aborts_total",
			Help: "Total number of aborted transmissions",
		},
	)

	// RxOverflowsTotal counts receive overflow conditions reported by the driver
	RxOverflowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ethmqtt_rx_overflows_total",
			Help: "Total number of receive overflow conditions",
		},
	)

	// SessionState tracks the connection state machine
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ethmqtt_session_state",
			Help: "Current connection state (0=Idle ... 6=TcpConnectionActive)",
		},
	)

	// SessionStallsTotal counts waiting states abandoned after their timeout
	SessionStallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethmqtt_session_stalls_total",
			Help: "Total number of connection attempts that timed out",
		},
		[]string{"state"},
	)

	// MQTTMessagesTotal counts MQTT control packets by direction and type
	MQTTMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethmqtt_mqtt_messages_total",
			Help: "Total number of MQTT control packets",
		},
		[]string{"direction", "type"},
	)

	// EventBusDroppedTotal counts events rejected by a full partition
	EventBusDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethmqtt_eventbus_dropped_total",
			Help: "Total number of events dropped by the event bus",
		},
		[]string{"topic"},
	)
)

// Directions for MQTTMessagesTotal
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)
