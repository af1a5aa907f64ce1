package link

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/ethmqtt/internal/log"
)

// Sniffer wraps a Driver and records every received and transmitted frame
// in pcap format.
type Sniffer struct {
	Driver

	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	now    func() time.Time
}

// NewSniffer writes the pcap file header to w and returns the wrapped driver.
// If w is an io.Closer it is closed together with the driver.
func NewSniffer(lower Driver, w io.Writer, snapLen int) (*Sniffer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(uint32(snapLen), layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	s := &Sniffer{Driver: lower, w: pw, now: time.Now}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

func (s *Sniffer) record(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     s.now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := s.w.WritePacket(ci, frame); err != nil {
		log.GetLogger().WithError(err).Warn("sniffer write failed")
	}
}

func (s *Sniffer) ReceiveFrame(buf []byte) (int, error) {
	n, err := s.Driver.ReceiveFrame(buf)
	if err == nil && n > 0 {
		s.record(buf[:n])
	}
	return n, err
}

func (s *Sniffer) TransmitFrame(frame []byte) error {
	if err := s.Driver.TransmitFrame(frame); err != nil {
		return err
	}
	s.record(frame)
	return nil
}

func (s *Sniffer) Close() error {
	err := s.Driver.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
