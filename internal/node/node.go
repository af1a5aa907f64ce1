// Package node runs the protocol stack: one goroutine polls the driver,
// classifies each received frame and answers it from a single packet
// buffer. Every other goroutine talks to the node through its methods,
// which queue work onto that goroutine.
package node

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/builder"
	"firestige.xyz/ethmqtt/internal/core/classify"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/eventbus"
	"firestige.xyz/ethmqtt/internal/link"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/metrics"
	"firestige.xyz/ethmqtt/internal/mqtt"
	"firestige.xyz/ethmqtt/internal/neighbor"
	"firestige.xyz/ethmqtt/internal/netcfg"
	"firestige.xyz/ethmqtt/internal/session"
	"firestige.xyz/ethmqtt/internal/store"
)

const DefaultPollInterval = time.Millisecond

// Options tunes a Node.
type Options struct {
	// Session bounds the waiting states; OnTransition is chained after the
	// node's own hook.
	Session session.Options
	// KeepAlive is the PINGREQ interval while the MQTT session is up.
	// Zero disables keep-alive.
	KeepAlive time.Duration
	// PollInterval is how long the loop sleeps when nothing happened.
	PollInterval time.Duration
	// LegacyPublishTrailer selects mqtt.Encoder.PublishLegacy for Publish.
	LegacyPublishTrailer bool
	// LegacyConnack reads the CONNACK return code from the first variable
	// header byte.
	LegacyConnack bool
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Stats counts loop activity since start.
type Stats struct {
	Received         uint64 `json:"received"`
	Transmitted      uint64 `json:"transmitted"`
	Dropped          uint64 `json:"dropped"`
	Overflows        uint64 `json:"overflows"`
	TransmitAborts   uint64 `json:"transmit_aborts"`
	MessagesReceived uint64 `json:"messages_received"`
}

type request struct {
	fn   func() error
	done chan error
}

// Node owns the packet buffer, the network configuration and the connection
// state machine.
type Node struct {
	cfg       *netcfg.Config
	drv       link.Driver
	build     *builder.Builder
	cls       *classify.Classifier
	machine   *session.Machine
	store     store.Store
	neighbors *neighbor.Cache
	bus       eventbus.EventBus
	opts      Options

	buf     decoder.PacketBuffer
	scratch [decoder.MaxFrameSize]byte // MQTT payloads before they are framed
	enc     *mqtt.Encoder              // writes into scratch

	requests chan request
	done     chan struct{}
	running  atomic.Bool

	indicator bool
	mqttUp    bool
	lastSent  time.Time
	stats     Stats
}

// New creates a node. st, nb and bus may be nil.
func New(cfg *netcfg.Config, drv link.Driver, st store.Store, nb *neighbor.Cache, bus eventbus.EventBus, opts Options) *Node {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if st == nil {
		st = &store.Memory{}
	}
	if nb == nil {
		nb = neighbor.New(0, 0)
	}

	n := &Node{
		cfg:       cfg,
		drv:       drv,
		build:     builder.New(cfg, drv),
		cls:       classify.New(cfg, classify.WithLegacyConnack(opts.LegacyConnack)),
		store:     st,
		neighbors: nb,
		bus:       bus,
		opts:      opts,
		requests:  make(chan request),
		done:      make(chan struct{}),
	}

	n.enc = mqtt.NewEncoder(n.scratch[:])

	sessOpts := opts.Session
	chained := sessOpts.OnTransition
	sessOpts.OnTransition = func(from, to session.State) {
		n.onTransition(from, to)
		if chained != nil {
			chained(from, to)
		}
	}
	if sessOpts.Now == nil {
		sessOpts.Now = opts.Now
	}
	n.machine = session.NewMachine(cfg, n.build, sessOpts)
	metrics.SessionState.Set(float64(session.StateIdle))
	return n
}

// Run polls until ctx is cancelled. It must be called once.
func (n *Node) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return errors.New("node is already running")
	}
	defer close(n.done)

	logger := log.GetLogger()
	logger.WithFields(map[string]interface{}{
		"mac": n.cfg.MAC().String(),
		"ip":  n.cfg.IP().String(),
	}).Info("Node started")
	defer logger.Info("Node stopped")

	idle := time.NewTimer(n.opts.PollInterval)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if n.PollOnce() {
			continue
		}
		idle.Reset(n.opts.PollInterval)
		select {
		case <-ctx.Done():
			return nil
		case req := <-n.requests:
			n.serve(req)
		case <-idle.C:
		}
	}
}

// Done is closed when Run returns.
func (n *Node) Done() <-chan struct{} { return n.done }

// PollOnce runs one loop iteration and reports whether it did any work.
// It must only be called from the goroutine that owns the node.
func (n *Node) PollOnce() bool {
	busy := n.drainRequests()

	before := n.machine.State()
	if err := n.machine.Step(n.buf[:]); err != nil {
		n.sent(stepKind(before), err)
	} else if n.machine.State() != before {
		n.sent(stepKind(before), nil)
		busy = true
	}

	now := n.opts.Now()
	waiting := n.machine.State()
	if err := n.machine.Tick(now); err != nil {
		metrics.SessionStallsTotal.WithLabelValues(waiting.String()).Inc()
		log.GetLogger().WithError(err).Warn("Connection attempt abandoned")
		busy = true
	}
	n.keepAlive(now)

	if !n.drv.IsLinkUp() || !n.drv.IsDataAvailable() {
		return busy
	}
	if n.drv.IsRxOverflow() {
		n.overflow()
	}

	size, err := n.drv.ReceiveFrame(n.buf[:])
	if err != nil {
		n.drop("receive_error")
		log.GetLogger().WithError(err).Warn("Failed to receive frame")
		return true
	}
	if size > 0 {
		n.handleFrame(size)
	}
	return true
}

func (n *Node) drainRequests() bool {
	served := false
	for {
		select {
		case req := <-n.requests:
			n.serve(req)
			served = true
		default:
			return served
		}
	}
}

func (n *Node) serve(req request) {
	req.done <- req.fn()
}

// call runs fn on the loop goroutine and waits for its result.
func (n *Node) call(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case n.requests <- req:
	case <-n.done:
		return core.ErrNodeStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Node) overflow() {
	n.stats.Overflows++
	metrics.RxOverflowsTotal.Inc()
	log.GetLogger().WithField("total", n.stats.Overflows).Warn("Receive overflow, frames were lost")
	n.publish(eventbus.TopicLinkOverflow, "link", eventbus.Overflow{Total: n.stats.Overflows})
}

func (n *Node) drop(reason string) {
	n.stats.Dropped++
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
}

// sent accounts for one transmit attempt and passes err through.
func (n *Node) sent(kind string, err error) error {
	if err != nil {
		if errors.Is(err, core.ErrTransmitAbort) {
			n.stats.TransmitAborts++
			metrics.TransmitAbortsTotal.Inc()
		}
		log.GetLogger().WithError(err).WithField("kind", kind).Warn("Transmit failed")
		return err
	}
	n.stats.Transmitted++
	metrics.FramesTransmittedTotal.WithLabelValues(kind).Inc()
	return nil
}

func (n *Node) publish(topic, key string, payload interface{}) {
	if n.bus == nil {
		return
	}
	if err := n.bus.Publish(&eventbus.Event{Topic: topic, Key: key, Payload: payload}); err != nil {
		metrics.EventBusDroppedTotal.WithLabelValues(topic).Inc()
		log.GetLogger().WithError(err).Debugf("Dropped %s event", topic)
	}
}

func (n *Node) onTransition(from, to session.State) {
	metrics.SessionState.Set(float64(to))
	if to == session.StateIdle {
		n.mqttUp = false
	}
	log.GetLogger().WithField("broker", n.cfg.BrokerIP().String()).
		Infof("Transitioned session state, from %s to %s", from, to)
	n.publish(eventbus.TopicSessionState, n.cfg.BrokerIP().String(),
		eventbus.StateChange{From: from.String(), To: to.String()})
}

func stepKind(s session.State) string {
	switch s {
	case session.StateSendARPRequest:
		return "arp_request"
	case session.StateSendTCPSyn:
		return "tcp_syn"
	case session.StateSendTCPAck:
		return "tcp_ack"
	default:
		return "unknown"
	}
}
