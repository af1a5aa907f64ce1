package link

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/testutil"
)

func TestChannelReceive(t *testing.T) {
	ch := NewChannel(2, 4)
	assert.True(t, ch.IsLinkUp())
	assert.False(t, ch.IsDataAvailable())

	frame := testutil.ARPRequest(testutil.Broker, testutil.LocalIP)
	ch.Inject(frame)
	assert.True(t, ch.IsDataAvailable())

	buf := make([]byte, 1522)
	n, err := ch.ReceiveFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, frame, buf[:n])
	assert.False(t, ch.IsDataAvailable())

	n, err = ch.ReceiveFrame(buf)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestChannelOverflow(t *testing.T) {
	ch := NewChannel(1, 1)
	ch.Inject([]byte{1})
	ch.Inject([]byte{2})

	assert.True(t, ch.IsRxOverflow())
	assert.False(t, ch.IsRxOverflow(), "querying clears the condition")

	buf := make([]byte, 4)
	n, err := ch.ReceiveFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, buf[:n])
}

func TestChannelReceiveTooLarge(t *testing.T) {
	ch := NewChannel(1, 1)
	ch.Inject(make([]byte, 100))

	_, err := ch.ReceiveFrame(make([]byte, 10))
	assert.ErrorIs(t, err, core.ErrBufferTooSmall)
}

func TestChannelTransmit(t *testing.T) {
	ch := NewChannel(1, 2)

	frame := []byte{1, 2, 3}
	require.NoError(t, ch.TransmitFrame(frame))
	frame[0] = 9 // caller reuses its buffer

	sent := ch.Transmitted()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte{1, 2, 3}, sent[0])

	ch.FailNextTransmits(1)
	assert.ErrorIs(t, ch.TransmitFrame(frame), core.ErrTransmitAbort)
	assert.NoError(t, ch.TransmitFrame(frame))

	ch.SetLinkUp(false)
	err := ch.TransmitFrame(frame)
	assert.ErrorIs(t, err, core.ErrTransmitAbort)
	assert.ErrorIs(t, err, core.ErrLinkDown)
	assert.False(t, ch.IsLinkUp())
}

func TestChannelTransmitQueueFull(t *testing.T) {
	ch := NewChannel(1, 1)
	require.NoError(t, ch.TransmitFrame([]byte{1}))
	assert.ErrorIs(t, ch.TransmitFrame([]byte{2}), core.ErrTransmitAbort)
}

func TestFrameFilter(t *testing.T) {
	vm, err := bpf.NewVM(frameFilter(1522))
	require.NoError(t, err)

	tests := []struct {
		name   string
		frame  []byte
		accept bool
	}{
		{"arp", testutil.ARPRequest(testutil.Broker, testutil.LocalIP), true},
		{"ipv4", testutil.UDP(testutil.Other, testutil.Local, 1, 2, []byte("on")), true},
		{"ipv6", append(make([]byte, 12), 0x86, 0xDD, 0x60, 0, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := vm.Run(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.accept, n > 0)
		})
	}

	raw, err := assembleFilter(1522)
	require.NoError(t, err)
	assert.Len(t, raw, 5)
}

func TestRecomputeSize(t *testing.T) {
	frameSize, blockSize, numBlocks, err := recomputeSize(2, 1522, 4096)
	require.NoError(t, err)

	assert.Zero(t, frameSize%16)
	assert.GreaterOrEqual(t, frameSize, 1522+52)
	assert.Zero(t, blockSize%4096)
	assert.Zero(t, blockSize%frameSize)
	assert.GreaterOrEqual(t, numBlocks, 1)

	_, _, _, err = recomputeSize(0, 1522, 4096)
	assert.Error(t, err)
	_, _, _, err = recomputeSize(2, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = recomputeSize(2, 1522, 100)
	assert.Error(t, err)
}

func TestSnifferAndReplay(t *testing.T) {
	ch := NewChannel(4, 4)
	var capture bytes.Buffer

	sn, err := NewSniffer(ch, &capture, 1522)
	require.NoError(t, err)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sn.now = func() time.Time { return fixed }

	in := testutil.ARPRequest(testutil.Broker, testutil.LocalIP)
	out := testutil.ARPReply(testutil.Local, testutil.Broker)
	ch.Inject(in)

	buf := make([]byte, 1522)
	n, err := sn.ReceiveFrame(buf)
	require.NoError(t, err)
	require.Equal(t, len(in), n)
	require.NoError(t, sn.TransmitFrame(out))

	// The capture replays both frames in order
	replay, err := NewReplay(bytes.NewReader(capture.Bytes()))
	require.NoError(t, err)
	assert.True(t, replay.IsLinkUp())

	var echoed [][]byte
	replay.OnTransmit(func(f []byte) { echoed = append(echoed, f) })

	require.True(t, replay.IsDataAvailable())
	n, err = replay.ReceiveFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, in, buf[:n])

	n, err = replay.ReceiveFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, out, buf[:n])

	assert.False(t, replay.IsDataAvailable())
	assert.False(t, replay.IsRxOverflow())

	require.NoError(t, replay.TransmitFrame([]byte{1, 2}))
	assert.Equal(t, 1, replay.Sent())
	assert.Equal(t, [][]byte{{1, 2}}, echoed)
	assert.NoError(t, replay.Close())
	assert.NoError(t, sn.Close())
}
