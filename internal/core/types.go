// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// HardwareAddr is an Ethernet MAC address stored by value.
type HardwareAddr [6]byte

// BroadcastHardwareAddr is ff:ff:ff:ff:ff:ff.
var BroadcastHardwareAddr = HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ParseHardwareAddr parses a 48-bit MAC in any form accepted by net.ParseMAC.
func ParseHardwareAddr(s string) (HardwareAddr, error) {
	mac, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return HardwareAddr{}, fmt.Errorf("%w: hardware address %q: %v", ErrConfigInvalid, s, err)
	}
	if len(mac) != 6 {
		return HardwareAddr{}, fmt.Errorf("%w: hardware address %q is not 48 bits", ErrConfigInvalid, s)
	}
	var hw HardwareAddr
	copy(hw[:], mac)
	return hw, nil
}

func (h HardwareAddr) String() string {
	return net.HardwareAddr(h[:]).String()
}

// IsZero reports whether every octet is zero (address not yet learned).
func (h HardwareAddr) IsZero() bool {
	return h == HardwareAddr{}
}

// MarshalText implements encoding.TextMarshaler.
func (h HardwareAddr) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HardwareAddr) UnmarshalText(text []byte) error {
	hw, err := ParseHardwareAddr(string(text))
	if err != nil {
		return err
	}
	*h = hw
	return nil
}

// IPv4Addr is an IPv4 address in network byte order stored by value.
type IPv4Addr [4]byte

// ParseIPv4Addr parses dotted-quad notation.
func ParseIPv4Addr(s string) (IPv4Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return IPv4Addr{}, fmt.Errorf("%w: ipv4 address %q", ErrConfigInvalid, s)
	}
	return IPv4Addr(addr.As4()), nil
}

func (a IPv4Addr) String() string {
	return netip.AddrFrom4(a).String()
}

// IsZero reports whether the address is 0.0.0.0.
func (a IPv4Addr) IsZero() bool {
	return a == IPv4Addr{}
}

// IsValid reports whether the address has been configured, i.e. it is not 0.0.0.0.
func (a IPv4Addr) IsValid() bool {
	return !a.IsZero()
}

// Addr converts to a netip.Addr.
func (a IPv4Addr) Addr() netip.Addr {
	return netip.AddrFrom4(a)
}

// MarshalText implements encoding.TextMarshaler.
func (a IPv4Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *IPv4Addr) UnmarshalText(text []byte) error {
	ip, err := ParseIPv4Addr(string(text))
	if err != nil {
		return err
	}
	*a = ip
	return nil
}

// DecodedFrame is a flat summary of one frame, used for logging and status output.
// It never aliases the packet buffer.
type DecodedFrame struct {
	DstMAC    HardwareAddr
	SrcMAC    HardwareAddr
	EtherType uint16

	// ARP (only populated for EtherType 0x0806)
	ARPOp uint16

	// IPv4 (only populated for EtherType 0x0800)
	SrcIP    IPv4Addr
	DstIP    IPv4Addr
	Protocol uint8
	TTL      uint8
	TotalLen uint16

	// Transport
	SrcPort    uint16
	DstPort    uint16
	TCPFlags   uint16
	SeqNum     uint32
	AckNum     uint32
	PayloadLen int
}
