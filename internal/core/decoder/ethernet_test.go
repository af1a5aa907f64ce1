package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/ethmqtt/internal/core"
)

func TestParseEthernetBasic(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00,                         // EtherType: IPv4
		0x45, 0x00,                         // Payload (start of IP header)
	}

	eth, err := ParseEthernet(data)
	if err != nil {
		t.Fatalf("ParseEthernet failed: %v", err)
	}

	expectedDst := core.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	if eth.Destination() != expectedDst {
		t.Errorf("Expected Destination %v, got %v", expectedDst, eth.Destination())
	}

	expectedSrc := core.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if eth.Source() != expectedSrc {
		t.Errorf("Expected Source %v, got %v", expectedSrc, eth.Source())
	}

	if eth.EtherType() != EtherTypeIPv4 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", eth.EtherType())
	}

	if len(eth.Payload()) != 2 {
		t.Errorf("Expected payload length 2, got %d", len(eth.Payload()))
	}
}

func TestParseEthernetTooShort(t *testing.T) {
	data := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0xAA}

	_, err := ParseEthernet(data)
	if err != core.ErrPacketTooShort {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestEthernetSetters(t *testing.T) {
	buf := make([]byte, EthernetHeaderLen)
	eth, err := ParseEthernet(buf)
	assert.NoError(t, err)

	local := core.HardwareAddr{0x02, 0x03, 0x04, 0x05, 0x06, 0x70}
	peer := core.HardwareAddr{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	eth.SetDestination(peer)
	eth.SetSource(local)
	eth.SetEtherType(EtherTypeARP)

	assert.Equal(t, peer, eth.Destination())
	assert.Equal(t, local, eth.Source())
	assert.Equal(t, uint16(EtherTypeARP), eth.EtherType())

	eth.SwapAddresses()
	assert.Equal(t, local, eth.Destination())
	assert.Equal(t, peer, eth.Source())

	// The view writes through to the underlying buffer
	assert.Equal(t, byte(0x02), buf[0])
}

func TestParseARP(t *testing.T) {
	data := []byte{
		0x00, 0x01,                         // Hardware type: Ethernet
		0x08, 0x00,                         // Protocol type: IPv4
		0x06, 0x04,                         // Sizes
		0x00, 0x01,                         // Op: request
		0x10, 0x20, 0x30, 0x40, 0x50, 0x60, // Sender MAC
		192, 168, 1, 1,                     // Sender IP
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // Target MAC
		192, 168, 1, 112,                   // Target IP
		0x00, 0x00,                         // Ethernet padding
	}

	arp, err := ParseARP(data)
	assert.NoError(t, err)
	assert.Len(t, arp, ARPLen)
	assert.Equal(t, uint16(ARPHardwareEthernet), arp.HardwareType())
	assert.Equal(t, uint16(EtherTypeIPv4), arp.ProtocolType())
	assert.Equal(t, uint8(6), arp.HardwareSize())
	assert.Equal(t, uint8(4), arp.ProtocolSize())
	assert.Equal(t, uint16(ARPOpRequest), arp.Op())
	assert.Equal(t, core.HardwareAddr{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}, arp.SenderHardwareAddr())
	assert.Equal(t, core.IPv4Addr{192, 168, 1, 1}, arp.SenderIP())
	assert.True(t, arp.TargetHardwareAddr().IsZero())
	assert.Equal(t, core.IPv4Addr{192, 168, 1, 112}, arp.TargetIP())

	_, err = ParseARP(data[:27])
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}
