package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/core/builder"
	"firestige.xyz/ethmqtt/internal/core/classify"
	"firestige.xyz/ethmqtt/internal/core/decoder"
	"firestige.xyz/ethmqtt/internal/link"
	"firestige.xyz/ethmqtt/internal/netcfg"
	"firestige.xyz/ethmqtt/internal/testutil"
)

type harness struct {
	cfg     *netcfg.Config
	ch      *link.Channel
	cls     *classify.Classifier
	m       *Machine
	buf     decoder.PacketBuffer
	visited []State
	clock   time.Time
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		cfg:   netcfg.New(netcfg.DefaultOptions()),
		ch:    link.NewChannel(4, 16),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h.cfg.SetBrokerIP(testutil.BrokerIP)
	h.cls = classify.New(h.cfg)
	opts.OnTransition = func(_, to State) { h.visited = append(h.visited, to) }
	opts.Now = func() time.Time { return h.clock }
	h.m = NewMachine(h.cfg, builder.New(h.cfg, h.ch), opts)
	return h
}

// feed delivers frame through the packet buffer like the node does.
func (h *harness) feed(frame []byte) (bool, error) {
	n := copy(h.buf[:], frame)
	kind, f := h.cls.Classify(h.buf[:n])
	return h.m.HandleFrame(kind, f)
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.Step(h.buf[:]))
}

func synAck(seq, ack uint32) []byte {
	return testutil.TCP(testutil.Broker, testutil.Local, testutil.Segment{
		SrcPort: 1883, DstPort: netcfg.DefaultLocalPort,
		Seq: seq, Ack: ack, SYN: true, ACK: true,
	})
}

func TestHandshakeSequence(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Equal(t, StateIdle, h.m.State())

	require.NoError(t, h.m.Connect())
	h.step(t)
	arpOut := h.ch.Transmitted()
	require.Len(t, arpOut, 1)
	assert.Equal(t, uint16(decoder.EtherTypeARP), decoder.Ethernet(arpOut[0]).EtherType())

	consumed, err := h.feed(testutil.ARPReply(testutil.Broker, testutil.Local))
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, testutil.BrokerMAC, h.cfg.BrokerMAC())

	h.step(t)
	synOut := h.ch.Transmitted()
	require.Len(t, synOut, 1)
	syn, err := decoder.Locate(synOut[0])
	require.NoError(t, err)
	assert.Equal(t, decoder.TCPFlagsSYN, syn.TCP.Flags())
	assert.Equal(t, testutil.BrokerMAC, syn.Ethernet.Destination())

	consumed, err = h.feed(synAck(0x11223344, 1))
	require.NoError(t, err)
	assert.True(t, consumed)

	h.step(t)
	ackOut := h.ch.Transmitted()
	require.Len(t, ackOut, 1)
	ack, err := decoder.Locate(ackOut[0])
	require.NoError(t, err)
	assert.Equal(t, decoder.TCPFlagsACK, ack.TCP.Flags())
	assert.Equal(t, uint32(1), ack.TCP.SequenceNumber())
	assert.Equal(t, uint32(0x11223345), ack.TCP.AckNumber())

	assert.Equal(t, []State{
		StateSendARPRequest,
		StateWaitARPResponse,
		StateSendTCPSyn,
		StateWaitTCPSynAck,
		StateSendTCPAck,
		StateTCPConnectionActive,
	}, h.visited)

	// terminal: further steps send nothing
	h.step(t)
	assert.Empty(t, h.ch.Transmitted())
}

func TestWaitsIgnoreUnrelatedFrames(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Connect())
	h.step(t)

	// reply from another host
	consumed, err := h.feed(testutil.ARPReply(testutil.Other, testutil.Local))
	require.NoError(t, err)
	assert.False(t, consumed)
	// SYN-ACK before the ARP reply
	consumed, _ = h.feed(synAck(5, 1))
	assert.False(t, consumed)
	assert.Equal(t, StateWaitARPResponse, h.m.State())

	_, _ = h.feed(testutil.ARPReply(testutil.Broker, testutil.Local))
	h.step(t)

	// plain ACK and wrong port do not complete the handshake
	consumed, _ = h.feed(testutil.TCP(testutil.Broker, testutil.Local, testutil.Segment{
		SrcPort: 1883, DstPort: netcfg.DefaultLocalPort, Seq: 5, Ack: 1, ACK: true,
	}))
	assert.False(t, consumed)
	consumed, _ = h.feed(testutil.TCP(testutil.Broker, testutil.Local, testutil.Segment{
		SrcPort: 1883, DstPort: 4000, Seq: 5, Ack: 1, SYN: true, ACK: true,
	}))
	assert.False(t, consumed)
	assert.Equal(t, StateWaitTCPSynAck, h.m.State())
}

func TestSynAckMustAcknowledgeSyn(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Connect())
	h.step(t)
	_, _ = h.feed(testutil.ARPReply(testutil.Broker, testutil.Local))
	h.step(t)
	h.ch.Transmitted()

	for _, ack := range []uint32{0, 2, 0x11223344} {
		consumed, err := h.feed(synAck(0x11223344, ack))
		require.NoError(t, err)
		assert.False(t, consumed, "ack %d", ack)
		assert.Equal(t, StateWaitTCPSynAck, h.m.State())
	}

	consumed, err := h.feed(synAck(0x11223344, 1))
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, StateSendTCPAck, h.m.State())
}

func TestWaitForeverByDefault(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Connect())
	h.step(t)

	h.clock = h.clock.Add(24 * time.Hour)
	require.NoError(t, h.m.Tick(h.clock))
	assert.Equal(t, StateWaitARPResponse, h.m.State())
	assert.True(t, h.m.Deadline().IsZero())
}

func TestARPTimeout(t *testing.T) {
	h := newHarness(t, Options{ARPTimeout: 2 * time.Second})
	require.NoError(t, h.m.Connect())
	h.step(t)
	assert.Equal(t, h.clock.Add(2*time.Second), h.m.Deadline())

	require.NoError(t, h.m.Tick(h.clock.Add(time.Second)))
	assert.Equal(t, StateWaitARPResponse, h.m.State())

	err := h.m.Tick(h.clock.Add(2 * time.Second))
	assert.ErrorIs(t, err, core.ErrProtocolStall)
	assert.Equal(t, StateIdle, h.m.State())
}

func TestSynAckTimeout(t *testing.T) {
	h := newHarness(t, Options{SynAckTimeout: time.Second})
	require.NoError(t, h.m.Connect())
	h.step(t)
	_, _ = h.feed(testutil.ARPReply(testutil.Broker, testutil.Local))
	h.step(t)

	err := h.m.Tick(h.clock.Add(time.Minute))
	assert.ErrorIs(t, err, core.ErrProtocolStall)
	assert.Equal(t, StateIdle, h.m.State())
}

func TestResetRefusesConnection(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Connect())
	h.step(t)
	_, _ = h.feed(testutil.ARPReply(testutil.Broker, testutil.Local))
	h.step(t)

	consumed, err := h.feed(testutil.TCP(testutil.Broker, testutil.Local, testutil.Segment{
		SrcPort: 1883, DstPort: netcfg.DefaultLocalPort, Ack: 1, RST: true, ACK: true,
	}))
	assert.True(t, consumed)
	assert.ErrorIs(t, err, core.ErrConnectionRefused)
	assert.Equal(t, StateIdle, h.m.State())
}

func TestTransmitAbortRetries(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Connect())

	h.ch.FailNextTransmits(1)
	err := h.m.Step(h.buf[:])
	assert.ErrorIs(t, err, core.ErrTransmitAbort)
	assert.Equal(t, StateSendARPRequest, h.m.State())

	h.step(t)
	assert.Equal(t, StateWaitARPResponse, h.m.State())
	assert.Len(t, h.ch.Transmitted(), 1)
}

func TestConnectPreconditions(t *testing.T) {
	h := newHarness(t, Options{})
	h.cfg.SetBrokerIP(core.IPv4Addr{})
	assert.ErrorIs(t, h.m.Connect(), core.ErrConfigInvalid)

	h.cfg.SetBrokerIP(testutil.BrokerIP)
	require.NoError(t, h.m.Connect())
	assert.ErrorIs(t, h.m.Connect(), core.ErrBusy)
}

func TestCancelAndReset(t *testing.T) {
	h := newHarness(t, Options{})
	assert.False(t, h.m.Cancel())

	require.NoError(t, h.m.Connect())
	h.step(t)
	assert.True(t, h.m.Cancel())
	assert.Equal(t, StateIdle, h.m.State())

	h.cfg.SetSeq(10)
	h.cfg.SetAck(20)
	h.m.Reset()
	assert.Equal(t, uint32(0), h.cfg.Seq())
	assert.Equal(t, uint32(0), h.cfg.Ack())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "WaitTcpSynAck", StateWaitTCPSynAck.String())
	assert.Equal(t, "Invalid", State(42).String())
	assert.True(t, StateSendTCPAck.IsConnecting())
	assert.False(t, StateTCPConnectionActive.IsConnecting())
}
