package link

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/ethmqtt/internal/core"
)

// Replay feeds frames from a pcap file to the node and discards what the
// node transmits, counting it. It lets a captured conversation be replayed
// without a network interface.
type Replay struct {
	mu      sync.Mutex
	file    io.Closer
	r       *pcapgo.Reader
	next    []byte
	eof     bool
	sent    int
	onFrame func([]byte)
}

// OpenReplay opens a pcap file with Ethernet link type.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file %s: %w", path, err)
	}
	r, err := NewReplay(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReplay reads pcap data from r.
func NewReplay(r io.Reader) (*Replay, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	if pr.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("%w: pcap link type %s", core.ErrUnsupportedProto, pr.LinkType())
	}
	return &Replay{r: pr}, nil
}

// OnTransmit registers a callback receiving a copy of every transmitted frame.
func (r *Replay) OnTransmit(fn func([]byte)) {
	r.mu.Lock()
	r.onFrame = fn
	r.mu.Unlock()
}

// Sent returns the number of transmitted frames.
func (r *Replay) Sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// peek reads ahead one frame. Called with mu held.
func (r *Replay) peek() {
	if r.next != nil || r.eof {
		return
	}
	data, _, err := r.r.ReadPacketData()
	if err != nil {
		// EOF or a truncated record ends the replay
		r.eof = true
		return
	}
	r.next = data
}

func (r *Replay) IsLinkUp() bool {
	return true
}

func (r *Replay) IsDataAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peek()
	return r.next != nil
}

func (r *Replay) IsRxOverflow() bool {
	return false
}

func (r *Replay) ReceiveFrame(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peek()
	if r.next == nil {
		return 0, nil
	}
	frame := r.next
	r.next = nil
	if len(frame) > len(buf) {
		return 0, fmt.Errorf("frame of %d bytes: %w", len(frame), core.ErrBufferTooSmall)
	}
	return copy(buf, frame), nil
}

func (r *Replay) TransmitFrame(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent++
	if r.onFrame != nil {
		r.onFrame(append([]byte(nil), frame...))
	}
	return nil
}

func (r *Replay) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
