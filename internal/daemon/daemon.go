// Package daemon wires the observer, control plane, and metrics server
// together into one long-running process and owns its signal-driven
// lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"taskobs.dev/observer/internal/config"
	"taskobs.dev/observer/internal/control"
	logpkg "taskobs.dev/observer/internal/log"
	"taskobs.dev/observer/internal/metrics"
	"taskobs.dev/observer/internal/observer"
	"taskobs.dev/observer/internal/resource"
)

// Version is the daemon's reported version string.
const Version = "0.1.0"

// Daemon owns the TaskObserver, the control-plane UDS server, and the
// metrics HTTP server, and manages their combined start/stop lifecycle.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	pidFile    string
	log        logrus.FieldLogger

	obs           *observer.TaskObserver
	udsServer     *control.UDSServer
	metricsServer *metrics.Server

	startTime time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal

	mu      sync.Mutex
	stopped bool
}

// New loads configuration from configPath and constructs a Daemon ready
// for Start. pidFile overrides the configured control.pid_file when
// non-empty.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes logging, the observer, the control plane, and the
// metrics server, and returns once everything is running. Run then
// blocks for the daemon's lifetime.
func (d *Daemon) Start() error {
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.log = logpkg.Entry()

	d.log.WithFields(logrus.Fields{
		"version": Version,
		"config":  d.configPath,
		"root":    d.config.Observer.Root,
	}).Info("daemon: starting")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if err := d.startObserver(); err != nil {
		return fmt.Errorf("failed to start observer: %w", err)
	}

	if err := d.startControlPlane(); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	d.startTime = timeNow()
	d.log.Info("daemon: started successfully")
	return nil
}

// Run blocks until a termination signal, the daemon.shutdown control
// command, or ctx cancellation, handling SIGHUP as a reload trigger.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	d.log.Info("daemon: running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.log.WithField("signal", sig.String()).Info("daemon: received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				d.log.Info("daemon: received reload signal")
				if err := d.Reload(); err != nil {
					d.log.WithError(err).Error("daemon: reload failed")
				}
			}

		case <-d.shutdownChan:
			d.log.Info("daemon: shutdown triggered via control command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.log.WithError(d.ctx.Err()).Info("daemon: context cancelled")
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Stop performs an idempotent graceful shutdown of every component.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.log.Info("daemon: stopping")

	if d.udsServer != nil {
		d.log.Info("daemon: stopping control plane")
		if err := d.udsServer.Stop(); err != nil {
			d.log.WithError(err).Error("daemon: error stopping control plane")
		}
	}

	if d.obs != nil {
		d.log.Info("daemon: stopping observer")
		d.obs.Stop()
	}

	if d.metricsServer != nil {
		d.log.Info("daemon: stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			d.log.WithError(err).Error("daemon: error stopping metrics server")
		}
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		d.log.WithError(err).Error("daemon: error removing pid file")
	}

	d.log.Info("daemon: stopped gracefully")
}

// TriggerShutdown requests an asynchronous graceful shutdown, used by
// the control plane's daemon.shutdown command.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Status implements control.DaemonControl.
func (d *Daemon) Status() control.DaemonStatus {
	active, finished := d.obs.TaskIDCount()
	return control.DaemonStatus{
		PID:           os.Getpid(),
		Version:       Version,
		UptimeSeconds: int64(timeNow().Sub(d.startTime).Seconds()),
		ActiveTasks:   active,
		FinishedTasks: finished,
	}
}

// Reload implements control.DaemonControl. Only the log level is
// hot-applied; everything else in config.GlobalConfig is cold (the
// observer's root/sampler intervals are baked into its resource
// factory at construction, and the control/metrics listen addresses
// are bound at Start) and requires a daemon restart to take effect.
func (d *Daemon) Reload() error {
	d.log.WithField("path", d.configPath).Info("daemon: reloading configuration")

	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	if newCfg.Log.Level != d.config.Log.Level {
		if err := logpkg.SetLevel(newCfg.Log.Level); err != nil {
			d.log.WithError(err).Warn("daemon: invalid log level in reloaded config, keeping current level")
		}
	}

	var coldChanges []string
	if newCfg.Observer.Root != d.config.Observer.Root {
		coldChanges = append(coldChanges, "observer.root")
	}
	if newCfg.Control.Socket != d.config.Control.Socket {
		coldChanges = append(coldChanges, "control.socket")
	}
	if newCfg.Metrics.Listen != d.config.Metrics.Listen {
		coldChanges = append(coldChanges, "metrics.listen")
	}
	if len(coldChanges) > 0 {
		d.log.WithField("fields", coldChanges).Warn("daemon: changed fields require a restart to take effect")
	}

	d.config = newCfg
	d.log.Info("daemon: configuration reloaded")
	return nil
}

// Shutdown implements control.DaemonControl.
func (d *Daemon) Shutdown() error {
	d.TriggerShutdown()
	return nil
}

func (d *Daemon) initLogging() error {
	logpkg.Init(buildLoggerConfig(d.config.Log))
	return nil
}

func (d *Daemon) startObserver() error {
	pollInterval, err := time.ParseDuration(d.config.Observer.PollingInterval)
	if err != nil || pollInterval <= 0 {
		pollInterval = observer.DefaultPollingInterval
	}
	samplerInterval, err := time.ParseDuration(d.config.Observer.SamplerInterval)
	if err != nil {
		samplerInterval = 0 // resource.Config defaults it
	}
	diskInterval, err := time.ParseDuration(d.config.Observer.DiskUsageInterval)
	if err != nil {
		diskInterval = 0 // resource.Config defaults it
	}

	factory := resource.NewFactory(resource.Config{
		SampleInterval: samplerInterval,
		DiskInterval:   diskInterval,
	})

	opts := []observer.Option{
		observer.WithPollingInterval(pollInterval),
		observer.WithLogger(d.log),
	}
	if d.config.Metrics.Enabled {
		opts = append(opts, observer.WithRecorder(metrics.New()))
	}

	obs, err := observer.New(d.config.Observer.Root, factory, opts...)
	if err != nil {
		return err
	}
	d.obs = obs

	go func() {
		if err := d.obs.Run(d.ctx); err != nil && err != context.Canceled {
			d.log.WithError(err).Error("daemon: observer reconciliation loop exited")
		}
	}()

	return nil
}

func (d *Daemon) startControlPlane() error {
	handler := control.NewHandler(d.obs, d, d.log)
	d.udsServer = control.NewUDSServer(d.config.Control.Socket, handler, d.log)

	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			d.log.WithError(err).Error("daemon: control plane server failed")
		}
	}()

	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		d.log.Info("daemon: metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, d.log)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return err
	}
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write pid file %s: %w", d.pidFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file %s: %w", d.pidFile, err)
	}
	return nil
}

// timeNow exists so tests can be written against Status without the
// package reaching for time.Now() in more than one place.
func timeNow() time.Time { return time.Now() }
