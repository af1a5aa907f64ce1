//go:build !linux

package link

import (
	"firestige.xyz/ethmqtt/internal/core"
)

// AFPacket is only available on linux.
type AFPacket struct {
	Driver
}

// OpenAFPacket always fails on this platform.
func OpenAFPacket(opts AFPacketOptions) (*AFPacket, error) {
	return nil, core.ErrUnsupportedDriver
}
