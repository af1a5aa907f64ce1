// Package session sequences connection establishment towards the broker:
// ARP resolution, then the TCP three-way handshake.
//
// The machine never waits by itself. Step performs the transmit-only
// transitions, HandleFrame consumes the replies and Tick enforces the
// optional deadlines; the node's loop calls all three.
package session

import (
	"fmt"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/builder"
	"firestige.xyz/ethmqtt/internal/core/classify"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/netcfg"
)

// Options bounds the waiting states. A zero timeout waits forever.
type Options struct {
	ARPTimeout    time.Duration
	SynAckTimeout time.Duration

	// OnTransition is called after every state change.
	OnTransition func(from, to State)
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Machine is the connection state machine. It is not safe for concurrent
// use; the node's loop goroutine owns it.
type Machine struct {
	cfg   *netcfg.Config
	build *builder.Builder
	opts  Options

	state    State
	deadline time.Time
}

func NewMachine(cfg *netcfg.Config, build *builder.Builder, opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{cfg: cfg, build: build, opts: opts}
}

func (m *Machine) State() State { return m.state }

// Deadline returns when the current waiting state times out, or the zero
// time when it waits forever.
func (m *Machine) Deadline() time.Time { return m.deadline }

// Connect starts establishment from Idle.
func (m *Machine) Connect() error {
	if m.state != StateIdle {
		return fmt.Errorf("%w: state %s", core.ErrBusy, m.state)
	}
	if !m.cfg.BrokerIP().IsValid() {
		return fmt.Errorf("%w: broker ip not set", core.ErrConfigInvalid)
	}
	m.transitionTo(StateSendARPRequest)
	return nil
}

// Step performs one transmit transition using buf as the packet buffer.
// A transmit abort leaves the state unchanged so the next Step retries.
// Step is a no-op in every other state.
func (m *Machine) Step(buf []byte) error {
	switch m.state {
	case StateSendARPRequest:
		if err := m.build.ARPRequest(buf, m.cfg.BrokerIP()); err != nil {
			return fmt.Errorf("arp request: %w", err)
		}
		m.wait(StateWaitARPResponse, m.opts.ARPTimeout)
	case StateSendTCPSyn:
		if err := m.build.TCPSegment(buf, m.cfg.Socket(), decoder.TCPFlagsSYN, nil); err != nil {
			return fmt.Errorf("tcp syn: %w", err)
		}
		m.wait(StateWaitTCPSynAck, m.opts.SynAckTimeout)
	case StateSendTCPAck:
		if err := m.build.TCPSegment(buf, m.cfg.Socket(), decoder.TCPFlagsACK, nil); err != nil {
			return fmt.Errorf("tcp ack: %w", err)
		}
		m.transitionTo(StateTCPConnectionActive)
	}
	return nil
}

// HandleFrame offers a classified frame to the machine and reports whether
// it was consumed. A SYN-ACK only completes the handshake when it
// acknowledges our SYN. A reset from the broker while waiting for the SYN-ACK
// returns the machine to Idle with core.ErrConnectionRefused.
func (m *Machine) HandleFrame(kind classify.Kind, f decoder.Frame) (bool, error) {
	switch m.state {
	case StateWaitARPResponse:
		if kind != classify.KindARPReply || f.ARP.SenderIP() != m.cfg.BrokerIP() {
			return false, nil
		}
		m.cfg.SetBrokerMAC(f.ARP.SenderHardwareAddr())
		m.transitionTo(StateSendTCPSyn)
		return true, nil

	case StateWaitTCPSynAck:
		if kind != classify.KindTCP || !m.fromBroker(f) {
			return false, nil
		}
		switch flags := f.TCP.Flags(); {
		case flags == decoder.TCPFlagsSYNACK && f.TCP.AckNumber() == m.cfg.Seq()+1:
			m.cfg.SetAck(f.TCP.SequenceNumber() + 1)
			m.cfg.SetSeq(f.TCP.AckNumber())
			m.transitionTo(StateSendTCPAck)
			return true, nil
		case flags.Has(decoder.TCPFlagRST):
			m.Reset()
			return true, core.ErrConnectionRefused
		}
	}
	return false, nil
}

// Tick resets a waiting machine whose deadline has passed and returns
// core.ErrProtocolStall.
func (m *Machine) Tick(now time.Time) error {
	if !m.state.IsWaiting() || m.deadline.IsZero() || now.Before(m.deadline) {
		return nil
	}
	stalled := m.state
	m.Reset()
	return fmt.Errorf("%w: no reply in %s", core.ErrProtocolStall, stalled)
}

// Cancel abandons an establishment in progress. It reports whether there was
// one to cancel.
func (m *Machine) Cancel() bool {
	if !m.state.IsConnecting() {
		return false
	}
	m.Reset()
	return true
}

// Reset returns to Idle and zeroes the sequence numbers.
func (m *Machine) Reset() {
	m.cfg.ResetSequence()
	m.deadline = time.Time{}
	if m.state != StateIdle {
		m.transitionTo(StateIdle)
	}
}

func (m *Machine) fromBroker(f decoder.Frame) bool {
	return f.Ethernet.Destination() == m.cfg.MAC() &&
		f.IPv4.Source() == m.cfg.BrokerIP() &&
		f.TCP.SourcePort() == m.cfg.BrokerPort() &&
		f.TCP.DestinationPort() == m.cfg.LocalPort()
}

func (m *Machine) wait(next State, timeout time.Duration) {
	m.deadline = time.Time{}
	if timeout > 0 {
		m.deadline = m.opts.Now().Add(timeout)
	}
	m.transitionTo(next)
}

func (m *Machine) transitionTo(next State) {
	prev := m.state
	m.state = next
	if !next.IsWaiting() {
		m.deadline = time.Time{}
	}
	log.GetLogger().WithField("broker", m.cfg.BrokerIP().String()).
		Debugf("Transitioned session state, from %s to %s", prev, next)
	if m.opts.OnTransition != nil {
		m.opts.OnTransition(prev, next)
	}
}
