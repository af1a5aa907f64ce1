// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"firestige.xyz/ethmqtt/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `ethmqtt:` root key in YAML.
type GlobalConfig struct {
	Interface   string         `mapstructure:"interface"`
	CaptureFile string         `mapstructure:"capture_file"` // pcap of every frame, empty = disabled
	DataDir     string         `mapstructure:"data_dir"`     // persisted addresses
	Driver      DriverConfig   `mapstructure:"driver"`
	Node        NodeConfig     `mapstructure:"node"`
	MQTT        MQTTConfig     `mapstructure:"mqtt"`
	Session     SessionConfig  `mapstructure:"session"`
	Neighbor    NeighborConfig `mapstructure:"neighbor"`
	EventBus    EventBusConfig `mapstructure:"eventbus"`
	Control     ControlConfig  `mapstructure:"control"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Log         LogConfig      `mapstructure:"log"`
}

// ─── Driver ───

// Driver types.
const (
	DriverAFPacket = "afpacket"
	DriverReplay   = "replay"
)

// DriverConfig selects and tunes the frame driver.
type DriverConfig struct {
	Type         string        `mapstructure:"type"`        // afpacket | replay
	ReplayFile   string        `mapstructure:"replay_file"` // pcap input for type=replay
	SnapLen      int           `mapstructure:"snap_len"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb"`
	QueueDepth   int           `mapstructure:"queue_depth"` // frames held before overflow
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

// ─── Node Identity ───

// NodeConfig is the factory identity of the node. IP is overridden by the
// persisted value when one was stored with `set ip`.
type NodeConfig struct {
	MAC        core.HardwareAddr `mapstructure:"mac"`
	IP         core.IPv4Addr     `mapstructure:"ip"`
	SubnetMask core.IPv4Addr     `mapstructure:"subnet_mask"`
	Gateway    core.IPv4Addr     `mapstructure:"gateway"`
	DHCP       bool              `mapstructure:"dhcp"`
}

// ─── MQTT ───

// MQTTConfig addresses the broker.
type MQTTConfig struct {
	BrokerIP             core.IPv4Addr `mapstructure:"broker_ip"`
	Port                 int           `mapstructure:"port"`
	LocalPort            int           `mapstructure:"local_port"`
	KeepAlive            time.Duration `mapstructure:"keep_alive"` // PINGREQ interval, 0 = disabled
	LegacyPublishTrailer bool          `mapstructure:"legacy_publish_trailer"`
	LegacyConnack        bool          `mapstructure:"legacy_connack"` // return code in the first CONNACK byte
}

// ─── Session ───

// SessionConfig bounds the waiting states of the connection state machine.
// Zero timeouts wait forever.
type SessionConfig struct {
	ARPTimeout    time.Duration `mapstructure:"arp_timeout"`
	SynAckTimeout time.Duration `mapstructure:"syn_ack_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// ─── Neighbor Cache ───

// NeighborConfig configures the ARP neighbour cache.
type NeighborConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ─── Event Bus ───

// EventBusConfig configures the in-process event bus.
type EventBusConfig struct {
	Partitions int `mapstructure:"partitions"`
	QueueSize  int `mapstructure:"queue_size"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket         string        `mapstructure:"socket"`
	PIDFile        string        `mapstructure:"pid_file"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // bound on one control request
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level        string           `mapstructure:"level"`  // debug / info / warn / error
	Format       string           `mapstructure:"format"` // pattern / json
	Pattern      string           `mapstructure:"pattern"`
	TimeLayout   string           `mapstructure:"time_layout"`
	ReportCaller bool             `mapstructure:"report_caller"`
	Outputs      LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `ethmqtt: ...`.
type configRoot struct {
	EthMQTT GlobalConfig `mapstructure:"ethmqtt"`
}

// Load loads configuration from file. An empty path loads defaults only.
// The YAML file uses `ethmqtt:` as root key; env vars use the ETHMQTT_ prefix
// (e.g., ETHMQTT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `ethmqtt.` key prefix maps to `ETHMQTT_` in env vars via the key
	// replacer (e.g., key "ethmqtt.node.ip" → env "ETHMQTT_NODE_IP").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := decode(v.AllSettings(), &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.EthMQTT

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// decode maps viper settings onto the config structs. Addresses decode
// through their UnmarshalText methods and durations from strings like "5s".
func decode(settings map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}

// setDefaults sets default values for configuration.
// All keys use the "ethmqtt." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ethmqtt.interface", "eth0")
	v.SetDefault("ethmqtt.capture_file", "")
	v.SetDefault("ethmqtt.data_dir", "/var/lib/ethmqtt")

	// Driver defaults
	v.SetDefault("ethmqtt.driver.type", DriverAFPacket)
	v.SetDefault("ethmqtt.driver.replay_file", "")
	v.SetDefault("ethmqtt.driver.snap_len", 1522)
	v.SetDefault("ethmqtt.driver.buffer_size_mb", 2)
	v.SetDefault("ethmqtt.driver.queue_depth", 64)
	v.SetDefault("ethmqtt.driver.poll_timeout", "100ms")

	// Node identity defaults
	v.SetDefault("ethmqtt.node.mac", "02:03:04:05:06:70")
	v.SetDefault("ethmqtt.node.ip", "192.168.1.112")
	v.SetDefault("ethmqtt.node.subnet_mask", "255.255.255.0")
	v.SetDefault("ethmqtt.node.gateway", "192.168.1.1")
	v.SetDefault("ethmqtt.node.dhcp", false)

	// MQTT defaults
	v.SetDefault("ethmqtt.mqtt.broker_ip", "0.0.0.0")
	v.SetDefault("ethmqtt.mqtt.port", 1883)
	v.SetDefault("ethmqtt.mqtt.local_port", 49152)
	v.SetDefault("ethmqtt.mqtt.keep_alive", "60s")
	v.SetDefault("ethmqtt.mqtt.legacy_publish_trailer", false)
	v.SetDefault("ethmqtt.mqtt.legacy_connack", false)

	// Session defaults (zero = wait forever)
	v.SetDefault("ethmqtt.session.arp_timeout", "0s")
	v.SetDefault("ethmqtt.session.syn_ack_timeout", "0s")
	v.SetDefault("ethmqtt.session.poll_interval", "1ms")

	// Neighbor cache defaults
	v.SetDefault("ethmqtt.neighbor.ttl", "5m")
	v.SetDefault("ethmqtt.neighbor.cleanup_interval", "1m")

	// Event bus defaults
	v.SetDefault("ethmqtt.eventbus.partitions", 2)
	v.SetDefault("ethmqtt.eventbus.queue_size", 256)

	// Control defaults
	v.SetDefault("ethmqtt.control.pid_file", "/var/run/ethmqtt.pid")
	v.SetDefault("ethmqtt.control.socket", "/var/run/ethmqtt.sock")
	v.SetDefault("ethmqtt.control.request_timeout", "5s")

	// Metrics defaults
	v.SetDefault("ethmqtt.metrics.enabled", true)
	v.SetDefault("ethmqtt.metrics.listen", ":9091")
	v.SetDefault("ethmqtt.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("ethmqtt.log.level", "info")
	v.SetDefault("ethmqtt.log.format", "pattern")
	v.SetDefault("ethmqtt.log.pattern", "%time [%level] %caller: %msg %field\n")
	v.SetDefault("ethmqtt.log.time_layout", "2006-01-02 15:04:05.000")
	v.SetDefault("ethmqtt.log.report_caller", false)
	v.SetDefault("ethmqtt.log.outputs.file.enabled", false)
	v.SetDefault("ethmqtt.log.outputs.file.path", "/var/log/ethmqtt/ethmqtt.log")
	v.SetDefault("ethmqtt.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("ethmqtt.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("ethmqtt.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("ethmqtt.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "pattern" && cfg.Log.Format != "json" {
		return fmt.Errorf("%w: invalid log format: %s (must be pattern/json)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Driver validation ──
	switch cfg.Driver.Type {
	case DriverAFPacket:
		if cfg.Interface == "" {
			return fmt.Errorf("%w: interface is required for the afpacket driver", core.ErrConfigInvalid)
		}
	case DriverReplay:
		if cfg.Driver.ReplayFile == "" {
			return fmt.Errorf("%w: driver.replay_file is required for the replay driver", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported driver.type: %s (must be afpacket/replay)", core.ErrConfigInvalid, cfg.Driver.Type)
	}
	if cfg.Driver.SnapLen < 1522 {
		cfg.Driver.SnapLen = 1522
	}

	// ── Node identity ──
	if cfg.Node.MAC.IsZero() {
		return fmt.Errorf("%w: node.mac must not be all zero", core.ErrConfigInvalid)
	}
	if cfg.Node.MAC[0]&0x01 != 0 {
		return fmt.Errorf("%w: node.mac %s is a multicast address", core.ErrConfigInvalid, cfg.Node.MAC)
	}

	// ── MQTT ──
	if err := validPort("mqtt.port", cfg.MQTT.Port); err != nil {
		return err
	}
	if err := validPort("mqtt.local_port", cfg.MQTT.LocalPort); err != nil {
		return err
	}
	if cfg.MQTT.KeepAlive < 0 {
		return fmt.Errorf("%w: mqtt.keep_alive must not be negative", core.ErrConfigInvalid)
	}

	// ── Session ──
	if cfg.Session.ARPTimeout < 0 || cfg.Session.SynAckTimeout < 0 {
		return fmt.Errorf("%w: session timeouts must not be negative", core.ErrConfigInvalid)
	}
	if cfg.Session.PollInterval <= 0 {
		cfg.Session.PollInterval = time.Millisecond
	}

	// ── Event bus ──
	if cfg.EventBus.Partitions <= 0 {
		cfg.EventBus.Partitions = 1
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 256
	}

	return nil
}

func validPort(key string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %s out of range: %d", core.ErrConfigInvalid, key, port)
	}
	return nil
}
