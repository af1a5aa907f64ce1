package decoder

import (
	"encoding/binary"

	"firestige.xyz/ethmqtt/internal/core"
)

const (
	ARPLen = 28

	ARPHardwareEthernet = 1
	ARPOpRequest        = 1
	ARPOpReply          = 2
)

// ARP is a view over an Ethernet/IPv4 ARP packet.
type ARP []byte

// ParseARP validates that b holds a complete 28 byte ARP packet.
func ParseARP(b []byte) (ARP, error) {
	if len(b) < ARPLen {
		return nil, core.ErrPacketTooShort
	}
	return ARP(b[:ARPLen]), nil
}

func (a ARP) HardwareType() uint16 { return binary.BigEndian.Uint16(a[0:2]) }
func (a ARP) ProtocolType() uint16 { return binary.BigEndian.Uint16(a[2:4]) }
func (a ARP) HardwareSize() uint8  { return a[4] }
func (a ARP) ProtocolSize() uint8  { return a[5] }
func (a ARP) Op() uint16           { return binary.BigEndian.Uint16(a[6:8]) }

func (a ARP) SenderHardwareAddr() core.HardwareAddr { return core.HardwareAddr(a[8:14]) }
func (a ARP) SenderIP() core.IPv4Addr               { return core.IPv4Addr(a[14:18]) }
func (a ARP) TargetHardwareAddr() core.HardwareAddr { return core.HardwareAddr(a[18:24]) }
func (a ARP) TargetIP() core.IPv4Addr               { return core.IPv4Addr(a[24:28]) }

func (a ARP) SetOp(op uint16)                            { binary.BigEndian.PutUint16(a[6:8], op) }
func (a ARP) SetSenderHardwareAddr(hw core.HardwareAddr) { copy(a[8:14], hw[:]) }
func (a ARP) SetSenderIP(ip core.IPv4Addr)               { copy(a[14:18], ip[:]) }
func (a ARP) SetTargetHardwareAddr(hw core.HardwareAddr) { copy(a[18:24], hw[:]) }
func (a ARP) SetTargetIP(ip core.IPv4Addr)               { copy(a[24:28], ip[:]) }

// SetIPv4OverEthernet writes the fixed hardware/protocol type and size fields.
func (a ARP) SetIPv4OverEthernet() {
	binary.BigEndian.PutUint16(a[0:2], ARPHardwareEthernet)
	binary.BigEndian.PutUint16(a[2:4], EtherTypeIPv4)
	a[4] = 6
	a[5] = 4
}
