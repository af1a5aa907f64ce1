// Package link provides the Ethernet frame drivers the node runs on.
package link

// Transmitter sends one complete Ethernet frame.
type Transmitter interface {
	// TransmitFrame sends frame, which the caller may reuse as soon as the
	// call returns. Failures wrap core.ErrTransmitAbort.
	TransmitFrame(frame []byte) error
}

// Driver is the frame-level device the node polls.
type Driver interface {
	Transmitter

	// IsLinkUp reports the physical link status.
	IsLinkUp() bool
	// IsDataAvailable reports whether ReceiveFrame would return a frame.
	IsDataAvailable() bool
	// IsRxOverflow reports whether frames were dropped since the last call
	// and clears the condition.
	IsRxOverflow() bool
	// ReceiveFrame copies the next frame into buf and returns its length.
	ReceiveFrame(buf []byte) (int, error)
	// Close releases the device.
	Close() error
}
