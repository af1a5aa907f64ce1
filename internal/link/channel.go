package link

import (
	"fmt"
	"sync"

	"firestige.xyz/ethmqtt/internal/core"
)

// Channel is an in-memory driver. Inbound frames are injected with Inject
// and outbound frames are delivered, copied, on C.
type Channel struct {
	mu       sync.Mutex
	rx       [][]byte
	depth    int
	overflow bool
	linkUp   bool
	failTx   int
	closed   bool

	C chan []byte
}

// NewChannel creates a Channel holding up to depth inbound frames and txSize
// outbound frames.
func NewChannel(depth, txSize int) *Channel {
	if depth <= 0 {
		depth = 1
	}
	return &Channel{
		depth:  depth,
		linkUp: true,
		C:      make(chan []byte, txSize),
	}
}

// Inject queues a copy of frame for reception. A full queue drops the frame
// and raises the overflow condition.
func (c *Channel) Inject(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rx) >= c.depth {
		c.overflow = true
		return
	}
	c.rx = append(c.rx, append([]byte(nil), frame...))
}

// SetLinkUp changes the reported link status.
func (c *Channel) SetLinkUp(up bool) {
	c.mu.Lock()
	c.linkUp = up
	c.mu.Unlock()
}

// FailNextTransmits makes the next n transmissions abort.
func (c *Channel) FailNextTransmits(n int) {
	c.mu.Lock()
	c.failTx = n
	c.mu.Unlock()
}

// Transmitted returns every frame sent so far without blocking.
func (c *Channel) Transmitted() [][]byte {
	var frames [][]byte
	for {
		select {
		case f := <-c.C:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func (c *Channel) IsLinkUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkUp && !c.closed
}

func (c *Channel) IsDataAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx) > 0
}

func (c *Channel) IsRxOverflow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	overflow := c.overflow
	c.overflow = false
	return overflow
}

func (c *Channel) ReceiveFrame(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rx) == 0 {
		return 0, nil
	}
	frame := c.rx[0]
	c.rx = c.rx[1:]
	if len(frame) > len(buf) {
		return 0, fmt.Errorf("frame of %d bytes: %w", len(frame), core.ErrBufferTooSmall)
	}
	return copy(buf, frame), nil
}

func (c *Channel) TransmitFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.linkUp {
		return fmt.Errorf("%w: %w", core.ErrTransmitAbort, core.ErrLinkDown)
	}
	if c.failTx > 0 {
		c.failTx--
		return core.ErrTransmitAbort
	}
	select {
	case c.C <- append([]byte(nil), frame...):
		return nil
	default:
		return fmt.Errorf("%w: transmit queue full", core.ErrTransmitAbort)
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
