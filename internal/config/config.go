// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration. Maps to the
// `taskobs:` root key in YAML.
type GlobalConfig struct {
	Observer ObserverConfig `mapstructure:"observer"`
	Control  ControlConfig  `mapstructure:"control"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ─── Observer ───

// ObserverConfig configures the reconciliation loop and its samplers.
// Every field is cold: changing one requires a restart, since Root,
// PollingInterval and the sampler intervals are baked into the
// TaskObserver and its resource factory at construction time.
type ObserverConfig struct {
	Root              string `mapstructure:"root"`
	PollingInterval   string `mapstructure:"polling_interval"`
	SamplerInterval   string `mapstructure:"sampler_interval"`
	DiskUsageInterval string `mapstructure:"disk_usage_interval"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings. Level is the one hot-reloadable
// field; Format/Outputs require a daemon restart to take effect.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
	Loki LokiOutputConfig `mapstructure:"loki"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// LokiOutputConfig configures Loki log output.
type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Endpoint     string            `mapstructure:"endpoint"`
	Labels       map[string]string `mapstructure:"labels"`
	BatchSize    int               `mapstructure:"batch_size"`
	BatchTimeout string            `mapstructure:"batch_timeout"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `taskobs: ...`.
type configRoot struct {
	TaskObs GlobalConfig `mapstructure:"taskobs"`
}

// Load reads configuration from path. The YAML file uses `taskobs:` as
// its root key; env vars use the TASKOBS_ prefix (e.g.
// TASKOBS_LOG_LEVEL), since the "taskobs." key prefix maps onto it
// naturally through the key replacer.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.TaskObs

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration, all under the
// "taskobs." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("taskobs.observer.root", "/var/lib/taskobs")
	v.SetDefault("taskobs.observer.polling_interval", "1s")
	v.SetDefault("taskobs.observer.sampler_interval", "2s")
	v.SetDefault("taskobs.observer.disk_usage_interval", "30s")

	v.SetDefault("taskobs.control.socket", "/var/run/taskobs.sock")
	v.SetDefault("taskobs.control.pid_file", "/var/run/taskobs.pid")

	v.SetDefault("taskobs.metrics.enabled", true)
	v.SetDefault("taskobs.metrics.listen", ":9091")
	v.SetDefault("taskobs.metrics.path", "/metrics")

	v.SetDefault("taskobs.log.level", "info")
	v.SetDefault("taskobs.log.format", "json")
	v.SetDefault("taskobs.log.outputs.file.enabled", false)
	v.SetDefault("taskobs.log.outputs.file.path", "/var/log/taskobs/taskobs.log")
	v.SetDefault("taskobs.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("taskobs.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("taskobs.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("taskobs.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and fills in
// anything Load's viper defaults don't cover.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Observer.Root == "" {
		return fmt.Errorf("observer.root must not be empty")
	}

	if cfg.Control.Socket == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Control.Socket = fmt.Sprintf("/var/run/taskobs-%s.sock", hostname)
	}

	return nil
}
