// Package decoder implements bounds-checked views over Ethernet, ARP, IPv4,
// ICMP, UDP and TCP headers laid out in a single packet buffer.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/ethmqtt/internal/core"
)

const (
	// Ethernet constants
	EthernetHeaderLen = 14

	// EtherType values
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
)

// Ethernet is a view over an Ethernet II frame.
type Ethernet []byte

// ParseEthernet validates that b holds a complete Ethernet header.
func ParseEthernet(b []byte) (Ethernet, error) {
	if len(b) < EthernetHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	return Ethernet(b), nil
}

// Destination returns the destination hardware address (6 bytes at offset 0).
func (e Ethernet) Destination() core.HardwareAddr {
	return core.HardwareAddr(e[0:6])
}

// Source returns the source hardware address (6 bytes at offset 6).
func (e Ethernet) Source() core.HardwareAddr {
	return core.HardwareAddr(e[6:12])
}

// EtherType returns the frame type (2 bytes at offset 12).
func (e Ethernet) EtherType() uint16 {
	return binary.BigEndian.Uint16(e[12:14])
}

// Payload returns everything after the header.
func (e Ethernet) Payload() []byte {
	return e[EthernetHeaderLen:]
}

func (e Ethernet) SetDestination(hw core.HardwareAddr) {
	copy(e[0:6], hw[:])
}

func (e Ethernet) SetSource(hw core.HardwareAddr) {
	copy(e[6:12], hw[:])
}

func (e Ethernet) SetEtherType(t uint16) {
	binary.BigEndian.PutUint16(e[12:14], t)
}

// SwapAddresses exchanges source and destination hardware addresses.
func (e Ethernet) SwapAddresses() {
	src, dst := e.Source(), e.Destination()
	e.SetDestination(src)
	e.SetSource(dst)
}
