package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
ethmqtt:
  interface: "enp3s0"
  data_dir: "/tmp/ethmqtt"
  node:
    mac: "02:00:00:00:00:01"
    ip: "10.0.0.20"
    subnet_mask: "255.255.0.0"
    gateway: "10.0.0.1"
  mqtt:
    broker_ip: "10.0.0.2"
    port: 1884
    keep_alive: "30s"
    legacy_publish_trailer: true
    legacy_connack: true
  session:
    arp_timeout: "2s"
    syn_ack_timeout: "3s"
  control:
    socket: "/tmp/test.sock"
    request_timeout: "250ms"
  metrics:
    enabled: false
  log:
    level: "debug"
    format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Interface != "enp3s0" {
		t.Errorf("Expected interface enp3s0, got %s", cfg.Interface)
	}
	if cfg.Node.MAC != (core.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}) {
		t.Errorf("Expected MAC 02:00:00:00:00:01, got %s", cfg.Node.MAC)
	}
	if cfg.Node.IP != (core.IPv4Addr{10, 0, 0, 20}) {
		t.Errorf("Expected IP 10.0.0.20, got %s", cfg.Node.IP)
	}
	if cfg.Node.SubnetMask != (core.IPv4Addr{255, 255, 0, 0}) {
		t.Errorf("Expected mask 255.255.0.0, got %s", cfg.Node.SubnetMask)
	}
	if cfg.MQTT.BrokerIP != (core.IPv4Addr{10, 0, 0, 2}) {
		t.Errorf("Expected broker 10.0.0.2, got %s", cfg.MQTT.BrokerIP)
	}
	if cfg.MQTT.Port != 1884 {
		t.Errorf("Expected broker port 1884, got %d", cfg.MQTT.Port)
	}
	if cfg.MQTT.KeepAlive != 30*time.Second {
		t.Errorf("Expected keep alive 30s, got %v", cfg.MQTT.KeepAlive)
	}
	if !cfg.MQTT.LegacyPublishTrailer {
		t.Error("Expected legacy publish trailer enabled")
	}
	if !cfg.MQTT.LegacyConnack {
		t.Error("Expected legacy connack enabled")
	}
	if cfg.Session.ARPTimeout != 2*time.Second || cfg.Session.SynAckTimeout != 3*time.Second {
		t.Errorf("Unexpected session timeouts: %+v", cfg.Session)
	}
	if cfg.Control.Socket != "/tmp/test.sock" {
		t.Errorf("Expected socket /tmp/test.sock, got %s", cfg.Control.Socket)
	}
	if cfg.Control.RequestTimeout != 250*time.Millisecond {
		t.Errorf("Expected request timeout 250ms, got %v", cfg.Control.RequestTimeout)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
ethmqtt:
  interface: "eth1"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Driver.Type != "afpacket" {
		t.Errorf("Expected driver afpacket, got %s", cfg.Driver.Type)
	}
	if cfg.Driver.SnapLen != 1522 {
		t.Errorf("Expected snap len 1522, got %d", cfg.Driver.SnapLen)
	}
	if cfg.Node.MAC.String() != "02:03:04:05:06:70" {
		t.Errorf("Expected default MAC, got %s", cfg.Node.MAC)
	}
	if cfg.Node.IP.String() != "192.168.1.112" {
		t.Errorf("Expected default IP, got %s", cfg.Node.IP)
	}
	if cfg.Node.Gateway.String() != "192.168.1.1" {
		t.Errorf("Expected default gateway, got %s", cfg.Node.Gateway)
	}
	if cfg.MQTT.BrokerIP.IsValid() {
		t.Errorf("Expected unconfigured broker, got %s", cfg.MQTT.BrokerIP)
	}
	if cfg.MQTT.Port != 1883 || cfg.MQTT.LocalPort != 49152 {
		t.Errorf("Unexpected ports: %d/%d", cfg.MQTT.Port, cfg.MQTT.LocalPort)
	}
	if cfg.Session.ARPTimeout != 0 || cfg.Session.SynAckTimeout != 0 {
		t.Errorf("Expected unbounded waits, got %+v", cfg.Session)
	}
	if cfg.Neighbor.TTL != 5*time.Minute {
		t.Errorf("Expected neighbor ttl 5m, got %v", cfg.Neighbor.TTL)
	}
	if cfg.Control.RequestTimeout != 5*time.Second {
		t.Errorf("Expected request timeout 5s, got %v", cfg.Control.RequestTimeout)
	}
	if cfg.EventBus.Partitions != 2 {
		t.Errorf("Expected 2 partitions, got %d", cfg.EventBus.Partitions)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
ethmqtt:
  interface: "eth1"
`)
	t.Setenv("ETHMQTT_MQTT_BROKER_IP", "192.168.1.9")
	t.Setenv("ETHMQTT_LOG_LEVEL", "warn")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.MQTT.BrokerIP.String() != "192.168.1.9" {
		t.Errorf("Expected broker from env, got %s", cfg.MQTT.BrokerIP)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected log level from env, got %s", cfg.Log.Level)
	}
}

func TestLoadReplayDriver(t *testing.T) {
	configPath := writeConfig(t, `
ethmqtt:
  driver:
    type: "replay"
    replay_file: "/tmp/in.pcap"
    snap_len: 64
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Driver.ReplayFile != "/tmp/in.pcap" {
		t.Errorf("Expected replay file, got %s", cfg.Driver.ReplayFile)
	}
	if cfg.Driver.SnapLen != 1522 {
		t.Errorf("Expected snap len raised to 1522, got %d", cfg.Driver.SnapLen)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "ethmqtt:\n  log:\n    level: \"invalid\"\n"},
		{"log format", "ethmqtt:\n  log:\n    format: \"xml\"\n"},
		{"driver type", "ethmqtt:\n  driver:\n    type: \"dpdk\"\n"},
		{"replay without file", "ethmqtt:\n  driver:\n    type: \"replay\"\n"},
		{"afpacket without interface", "ethmqtt:\n  interface: \"\"\n"},
		{"multicast mac", "ethmqtt:\n  node:\n    mac: \"01:00:5e:00:00:01\"\n"},
		{"port range", "ethmqtt:\n  mqtt:\n    port: 70000\n"},
		{"negative timeout", "ethmqtt:\n  session:\n    arp_timeout: \"-1s\"\n"},
		{"file output without path", "ethmqtt:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadBadAddress(t *testing.T) {
	_, err := Load(writeConfig(t, "ethmqtt:\n  node:\n    ip: \"300.1.1.1\"\n"))
	if err == nil {
		t.Fatal("Expected error for malformed address")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
