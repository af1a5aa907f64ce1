// Package netcfg holds the process-wide network identity and TCP sequencing
// state. A single Config is created at startup and passed by pointer to every
// component; it is only read or written from the node's loop goroutine.
package netcfg

import (
	"firestige.xyz/ethmqtt/internal/core"
)

const (
	DefaultBrokerPort = 1883
	DefaultLocalPort  = 49152
)

// Options seeds a Config.
type Options struct {
	MAC        core.HardwareAddr
	IP         core.IPv4Addr
	SubnetMask core.IPv4Addr
	Gateway    core.IPv4Addr
	BrokerIP   core.IPv4Addr
	DHCP       bool
	BrokerPort uint16
	LocalPort  uint16
}

// DefaultOptions returns the factory identity of the node.
func DefaultOptions() Options {
	return Options{
		MAC:        core.HardwareAddr{0x02, 0x03, 0x04, 0x05, 0x06, 0x70},
		IP:         core.IPv4Addr{192, 168, 1, 112},
		SubnetMask: core.IPv4Addr{255, 255, 255, 0},
		Gateway:    core.IPv4Addr{192, 168, 1, 1},
		BrokerPort: DefaultBrokerPort,
		LocalPort:  DefaultLocalPort,
	}
}

// Config is the node's identity plus the sequencing state of its single TCP
// connection.
type Config struct {
	mac        core.HardwareAddr
	ip         core.IPv4Addr
	subnetMask core.IPv4Addr
	gateway    core.IPv4Addr
	brokerIP   core.IPv4Addr
	brokerMAC  core.HardwareAddr
	dhcp       bool
	brokerPort uint16
	localPort  uint16

	ipID uint16
	seq  uint32
	ack  uint32
}

// New creates a Config. Zero ports fall back to the defaults.
func New(opts Options) *Config {
	if opts.BrokerPort == 0 {
		opts.BrokerPort = DefaultBrokerPort
	}
	if opts.LocalPort == 0 {
		opts.LocalPort = DefaultLocalPort
	}
	return &Config{
		mac:        opts.MAC,
		ip:         opts.IP,
		subnetMask: opts.SubnetMask,
		gateway:    opts.Gateway,
		brokerIP:   opts.BrokerIP,
		dhcp:       opts.DHCP,
		brokerPort: opts.BrokerPort,
		localPort:  opts.LocalPort,
		ipID:       1,
	}
}

func (c *Config) MAC() core.HardwareAddr       { return c.mac }
func (c *Config) IP() core.IPv4Addr            { return c.ip }
func (c *Config) SubnetMask() core.IPv4Addr    { return c.subnetMask }
func (c *Config) Gateway() core.IPv4Addr       { return c.gateway }
func (c *Config) BrokerIP() core.IPv4Addr      { return c.brokerIP }
func (c *Config) BrokerMAC() core.HardwareAddr { return c.brokerMAC }
func (c *Config) DHCP() bool                   { return c.dhcp }
func (c *Config) BrokerPort() uint16           { return c.brokerPort }
func (c *Config) LocalPort() uint16            { return c.localPort }
func (c *Config) Seq() uint32                  { return c.seq }
func (c *Config) Ack() uint32                  { return c.ack }

func (c *Config) SetMAC(hw core.HardwareAddr)       { c.mac = hw }
func (c *Config) SetIP(ip core.IPv4Addr)            { c.ip = ip }
func (c *Config) SetSubnetMask(mask core.IPv4Addr)  { c.subnetMask = mask }
func (c *Config) SetGateway(gw core.IPv4Addr)       { c.gateway = gw }
func (c *Config) SetBrokerIP(ip core.IPv4Addr)      { c.brokerIP = ip }
func (c *Config) SetBrokerMAC(hw core.HardwareAddr) { c.brokerMAC = hw }
func (c *Config) SetDHCP(enabled bool)              { c.dhcp = enabled }
func (c *Config) SetSeq(seq uint32)                 { c.seq = seq }
func (c *Config) SetAck(ack uint32)                 { c.ack = ack }

// IsIPValid reports whether a local address has been configured.
func (c *Config) IsIPValid() bool {
	return c.ip.IsValid()
}

// NextID returns the identification for the next outgoing IP datagram and
// advances the counter.
func (c *Config) NextID() uint16 {
	id := c.ipID
	c.ipID++
	return id
}

// AdvanceSeq moves the sequence number past n bytes of sent data.
func (c *Config) AdvanceSeq(n uint32) {
	c.seq += n
}

// ResetSequence zeroes the sequence and acknowledgment numbers.
func (c *Config) ResetSequence() {
	c.seq = 0
	c.ack = 0
}

// Socket is the addressing of the one TCP connection, filled from Config
// immediately before each transmit.
type Socket struct {
	SrcMAC  core.HardwareAddr
	DstMAC  core.HardwareAddr
	SrcIP   core.IPv4Addr
	DstIP   core.IPv4Addr
	SrcPort uint16
	DstPort uint16
}

// Socket returns the connection context towards the broker.
func (c *Config) Socket() Socket {
	return Socket{
		SrcMAC:  c.mac,
		DstMAC:  c.brokerMAC,
		SrcIP:   c.ip,
		DstIP:   c.brokerIP,
		SrcPort: c.localPort,
		DstPort: c.brokerPort,
	}
}

// Values is a copy of every field, safe to hand to other goroutines.
type Values struct {
	MAC        core.HardwareAddr `json:"mac"`
	IP         core.IPv4Addr     `json:"ip"`
	SubnetMask core.IPv4Addr     `json:"subnet_mask"`
	Gateway    core.IPv4Addr     `json:"gateway"`
	BrokerIP   core.IPv4Addr     `json:"broker_ip"`
	BrokerMAC  core.HardwareAddr `json:"broker_mac"`
	DHCP       bool              `json:"dhcp"`
	BrokerPort uint16            `json:"broker_port"`
	LocalPort  uint16            `json:"local_port"`
	Seq        uint32            `json:"seq"`
	Ack        uint32            `json:"ack"`
}

// Values copies the current configuration.
func (c *Config) Values() Values {
	return Values{
		MAC:        c.mac,
		IP:         c.ip,
		SubnetMask: c.subnetMask,
		Gateway:    c.gateway,
		BrokerIP:   c.brokerIP,
		BrokerMAC:  c.brokerMAC,
		DHCP:       c.dhcp,
		BrokerPort: c.brokerPort,
		LocalPort:  c.localPort,
		Seq:        c.seq,
		Ack:        c.ack,
	}
}
