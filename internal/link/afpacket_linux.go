//go:build linux

package link

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket/afpacket"
	"github.com/sirupsen/logrus"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/log"
)

// AFPacket drives a host interface through a TPACKET_V3 socket. A reader
// goroutine moves frames from the ring into a bounded queue; when the queue
// is full frames are dropped and the overflow condition is raised, the way
// the receive FIFO of an Ethernet controller behaves.
type AFPacket struct {
	opts   AFPacketOptions
	handle *afpacket.TPacket

	queue    chan []byte
	overflow atomic.Bool
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// OpenAFPacket opens the interface and starts the reader goroutine.
func OpenAFPacket(opts AFPacketOptions) (*AFPacket, error) {
	opts.applyDefaults()
	if opts.Interface == "" {
		return nil, fmt.Errorf("%w: interface is required", core.ErrConfigInvalid)
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open af_packet on %s: %w", opts.Interface, err)
	}

	filter, err := assembleFilter(opts.SnapLen)
	if err != nil {
		tp.Close()
		return nil, fmt.Errorf("assemble bpf filter: %w", err)
	}
	if err := tp.SetBPF(filter); err != nil {
		tp.Close()
		return nil, fmt.Errorf("attach bpf filter: %w", err)
	}

	d := &AFPacket{
		opts:   opts,
		handle: tp,
		queue:  make(chan []byte, opts.QueueDepth),
	}
	d.wg.Add(1)
	go d.readLoop()

	log.GetLogger().WithFields(logrus.Fields{
		"interface":  opts.Interface,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
	}).Info("af_packet driver opened")
	return d, nil
}

func (d *AFPacket) readLoop() {
	defer d.wg.Done()

	for !d.closed.Load() {
		data, _, err := d.handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) || d.closed.Load() {
				continue
			}
			log.GetLogger().WithError(err).Warn("af_packet read failed")
			continue
		}
		if len(data) >= 12 && core.HardwareAddr(data[6:12]) == d.opts.IgnoreSource {
			continue
		}

		frame := append([]byte(nil), data...)
		select {
		case d.queue <- frame:
		default:
			d.overflow.Store(true)
		}
	}
}

func (d *AFPacket) IsLinkUp() bool {
	iface, err := net.InterfaceByName(d.opts.Interface)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
}

func (d *AFPacket) IsDataAvailable() bool {
	return len(d.queue) > 0
}

func (d *AFPacket) IsRxOverflow() bool {
	return d.overflow.Swap(false)
}

func (d *AFPacket) ReceiveFrame(buf []byte) (int, error) {
	select {
	case frame := <-d.queue:
		if len(frame) > len(buf) {
			return 0, fmt.Errorf("frame of %d bytes: %w", len(frame), core.ErrBufferTooSmall)
		}
		return copy(buf, frame), nil
	default:
		return 0, nil
	}
}

func (d *AFPacket) TransmitFrame(frame []byte) error {
	if d.closed.Load() {
		return fmt.Errorf("%w: driver closed", core.ErrTransmitAbort)
	}
	if err := d.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransmitAbort, err)
	}
	return nil
}

func (d *AFPacket) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.wg.Wait()
	d.handle.Close()
	return nil
}
