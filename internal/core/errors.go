// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, matched with errors.Is and wrapped with fmt.Errorf("...: %w").
var (
	// Frame decoding errors
	ErrPacketTooShort   = errors.New("ethmqtt: packet too short")
	ErrMalformedPacket  = errors.New("ethmqtt: malformed packet")
	ErrUnsupportedProto = errors.New("ethmqtt: unsupported protocol")

	// Driver errors
	ErrRxOverflow        = errors.New("ethmqtt: receive overflow")
	ErrTransmitAbort     = errors.New("ethmqtt: transmit aborted")
	ErrUnsupportedDriver = errors.New("ethmqtt: driver not supported on this platform")
	ErrLinkDown          = errors.New("ethmqtt: link down")

	// Builder errors
	ErrBufferTooSmall   = errors.New("ethmqtt: buffer too small")
	ErrUnsupportedFlags = errors.New("ethmqtt: unsupported tcp flag combination")

	// Session errors
	ErrProtocolStall     = errors.New("ethmqtt: protocol stall")
	ErrConnectionRefused = errors.New("ethmqtt: connection refused by broker")
	ErrNotConnected      = errors.New("ethmqtt: tcp connection not active")
	ErrBusy              = errors.New("ethmqtt: connection attempt already in progress")
	ErrNodeStopped       = errors.New("ethmqtt: node stopped")

	// Configuration errors
	ErrConfigInvalid = errors.New("ethmqtt: invalid configuration")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("ethmqtt: daemon not running")
)
