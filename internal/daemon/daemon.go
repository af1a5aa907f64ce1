// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/ethmqtt/internal/command"
	"firestige.xyz/ethmqtt/internal/config"
	"firestige.xyz/ethmqtt/internal/eventbus"
	"firestige.xyz/ethmqtt/internal/link"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/metrics"
	"firestige.xyz/ethmqtt/internal/neighbor"
	"firestige.xyz/ethmqtt/internal/netcfg"
	"firestige.xyz/ethmqtt/internal/node"
	"firestige.xyz/ethmqtt/internal/session"
	"firestige.xyz/ethmqtt/internal/store"
)

// Daemon manages the ethmqtt daemon process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	driver        link.Driver
	bus           *eventbus.InMemoryEventBus
	node          *node.Node
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	sigChan      chan os.Signal // promoted from Run() local for cleanup in Stop()
}

// New creates a new Daemon instance. Empty socketPath and pidFile fall back
// to the control section of the configuration.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	// Load global configuration
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socketPath == "" {
		socketPath = globalConfig.Control.Socket
	}
	if pidFile == "" {
		pidFile = globalConfig.Control.PIDFile
	}

	// Create daemon instance
	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}),
	}

	// Create context for lifecycle management
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"config":    d.configPath,
		"socket":    d.socketPath,
		"interface": d.config.Interface,
		"driver":    d.config.Driver.Type,
	}).Info("Starting ethmqtt daemon")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Open the frame driver
	drv, err := d.openDriver()
	if err != nil {
		return fmt.Errorf("failed to open driver: %w", err)
	}
	d.driver = drv

	// 5. Network configuration, overridden by persisted addresses
	st := store.NewFileStore(d.config.DataDir)
	cfg := d.networkConfig()
	if persisted, err := st.Load(); err != nil {
		log.GetLogger().WithError(err).WithField("path", st.Path()).Warn("Ignoring persisted addresses")
	} else {
		applyPersisted(cfg, persisted)
	}

	// 6. Event bus with the daemon's subscribers
	d.bus = eventbus.NewInMemoryEventBus(d.config.EventBus.Partitions, d.config.EventBus.QueueSize)
	if err := d.subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	// 7. Node driving loop
	d.node = node.New(cfg, d.driver, st,
		neighbor.New(d.config.Neighbor.TTL, d.config.Neighbor.CleanupInterval),
		d.bus,
		node.Options{
			Session: session.Options{
				ARPTimeout:    d.config.Session.ARPTimeout,
				SynAckTimeout: d.config.Session.SynAckTimeout,
			},
			KeepAlive:            d.config.MQTT.KeepAlive,
			PollInterval:         d.config.Session.PollInterval,
			LegacyPublishTrailer: d.config.MQTT.LegacyPublishTrailer,
			LegacyConnack:        d.config.MQTT.LegacyConnack,
		})
	go func() {
		if err := d.node.Run(d.ctx); err != nil {
			log.GetLogger().WithError(err).Error("Node loop failed")
		}
	}()

	// 8. Create command handler
	d.cmdHandler = command.NewCommandHandler(d.node)

	// 9. Wire shutdown handler so daemon_shutdown command can trigger graceful stop
	d.cmdHandler.SetShutdownFunc(func() {
		log.GetLogger().Info("Shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	// 10. Start UDS server for CLI control
	if err := os.MkdirAll(filepath.Dir(d.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler, d.config.Control.RequestTimeout)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			log.GetLogger().WithError(err).Error("UDS server failed")
		}
	}()

	log.GetLogger().Info("Daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components. It is safe to
// call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	logger := log.GetLogger()
	logger.Info("Initiating graceful shutdown")

	// 1. Stop UDS server (no new CLI commands)
	if d.udsServer != nil {
		logger.Info("Stopping UDS server")
		d.udsServer.Stop()
	}

	// 2. Cancel context to stop the node loop and wait for it
	d.cancel()
	if d.node != nil {
		select {
		case <-d.node.Done():
		case <-time.After(5 * time.Second):
			logger.Warn("Node loop did not stop in time")
		}
	}

	// 3. Drain queued events
	if d.bus != nil {
		if err := d.bus.Close(); err != nil && !errors.Is(err, eventbus.ErrClosed) {
			logger.WithError(err).Error("Error closing event bus")
		}
	}

	// 4. Release the driver (flushes the capture file)
	if d.driver != nil {
		if err := d.driver.Close(); err != nil {
			logger.WithError(err).Error("Error closing driver")
		}
	}

	// 5. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error stopping metrics server")
		}
	}

	// 6. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 7. Remove PID file
	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Error("Error removing PID file")
	}

	logger.Info("Daemon stopped gracefully")
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS
func (d *Daemon) Run() error {
	// Setup signal handling
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT)

	log.GetLogger().Info("Daemon running, waiting for signals or commands")

	select {
	case sig := <-d.sigChan:
		log.GetLogger().WithField("signal", sig.String()).Info("Received shutdown signal")
		d.Stop()
		return nil

	case <-d.shutdownChan:
		log.GetLogger().Info("Shutdown triggered by command")
		d.Stop()
		return nil

	case <-d.ctx.Done():
		// Context cancelled externally
		log.GetLogger().WithError(d.ctx.Err()).Info("Context cancelled")
		d.Stop()
		return d.ctx.Err()
	}
}

// TriggerShutdown triggers graceful shutdown from external caller (e.g., daemon_shutdown command).
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownChan) })
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := log.Init(d.config.Log); err != nil {
		return err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"level":  d.config.Log.Level,
		"format": d.config.Log.Format,
	}).Debug("Logging initialized")

	return nil
}

// openDriver opens the configured driver, wrapped in a pcap recorder when a
// capture file is configured.
func (d *Daemon) openDriver() (link.Driver, error) {
	var (
		drv link.Driver
		err error
	)
	switch d.config.Driver.Type {
	case config.DriverReplay:
		drv, err = link.OpenReplay(d.config.Driver.ReplayFile)
	default:
		drv, err = link.OpenAFPacket(link.AFPacketOptions{
			Interface:    d.config.Interface,
			SnapLen:      d.config.Driver.SnapLen,
			BufferSizeMB: d.config.Driver.BufferSizeMB,
			QueueDepth:   d.config.Driver.QueueDepth,
			PollTimeout:  d.config.Driver.PollTimeout,
			IgnoreSource: d.config.Node.MAC,
		})
	}
	if err != nil {
		return nil, err
	}

	if d.config.CaptureFile == "" {
		return drv, nil
	}
	f, err := os.Create(d.config.CaptureFile)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	sniffer, err := link.NewSniffer(drv, f, d.config.Driver.SnapLen)
	if err != nil {
		f.Close()
		drv.Close()
		return nil, err
	}
	log.GetLogger().WithField("path", d.config.CaptureFile).Info("Recording frames")
	return sniffer, nil
}

func (d *Daemon) networkConfig() *netcfg.Config {
	return netcfg.New(netcfg.Options{
		MAC:        d.config.Node.MAC,
		IP:         d.config.Node.IP,
		SubnetMask: d.config.Node.SubnetMask,
		Gateway:    d.config.Node.Gateway,
		BrokerIP:   d.config.MQTT.BrokerIP,
		DHCP:       d.config.Node.DHCP,
		BrokerPort: uint16(d.config.MQTT.Port),
		LocalPort:  uint16(d.config.MQTT.LocalPort),
	})
}

// applyPersisted overrides configured addresses with stored ones.
func applyPersisted(cfg *netcfg.Config, p store.Persisted) {
	if p.IP != nil {
		cfg.SetIP(*p.IP)
		log.GetLogger().WithField("ip", p.IP.String()).Info("Using persisted node address")
	}
	if p.BrokerIP != nil {
		cfg.SetBrokerIP(*p.BrokerIP)
		log.GetLogger().WithField("broker", p.BrokerIP.String()).Info("Using persisted broker address")
	}
}

// subscribe logs what the node publishes.
func (d *Daemon) subscribe() error {
	if err := d.bus.Subscribe(eventbus.TopicMQTTMessage, func(e *eventbus.Event) error {
		msg, ok := e.Payload.(eventbus.Message)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		log.GetLogger().WithField("topic", msg.Topic).Infof("MQTT message: %s", msg.Data)
		return nil
	}); err != nil {
		return err
	}
	if err := d.bus.Subscribe(eventbus.TopicSessionState, func(e *eventbus.Event) error {
		if change, ok := e.Payload.(eventbus.StateChange); ok && change.To == session.StateTCPConnectionActive.String() {
			log.GetLogger().WithField("broker", e.Key).Info("Connected to broker")
		}
		return nil
	}); err != nil {
		return err
	}
	return d.bus.Subscribe(eventbus.TopicLinkOverflow, func(e *eventbus.Event) error {
		if o, ok := e.Payload.(eventbus.Overflow); ok {
			log.GetLogger().WithField("total", o.Total).Error("Receive overflow")
		}
		return nil
	})
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("Metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		d.metricsServer = nil
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	log.GetLogger().WithFields(map[string]interface{}{"path": d.pidFile, "pid": pid}).Debug("PID file written")
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	log.GetLogger().WithField("path", d.pidFile).Debug("PID file removed")
	return nil
}

// Node returns the running node, nil before Start.
func (d *Daemon) Node() *node.Node { return d.node }

// ReadPIDFile returns the PID stored in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	return pid, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
