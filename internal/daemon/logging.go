package daemon

import (
	"taskobs.dev/observer/internal/config"
	logpkg "taskobs.dev/observer/internal/log"
)

// buildLoggerConfig translates the viper-backed config.LogConfig into
// the logging package's LoggerConfig, turning on the File/Loki writers
// only when their respective output is enabled.
func buildLoggerConfig(cfg config.LogConfig) *logpkg.LoggerConfig {
	lc := &logpkg.LoggerConfig{
		Pattern: "[%time] [%level] %msg\n",
		Time:    "2006-01-02T15:04:05.000Z07:00",
		Level:   cfg.Level,
	}

	if cfg.Outputs.File.Enabled {
		lc.File = &logpkg.FileAppenderOpt{
			Filename:   cfg.Outputs.File.Path,
			MaxSize:    cfg.Outputs.File.Rotation.MaxSizeMB,
			MaxBackups: cfg.Outputs.File.Rotation.MaxBackups,
			MaxAge:     cfg.Outputs.File.Rotation.MaxAgeDays,
			Compress:   cfg.Outputs.File.Rotation.Compress,
		}
	}

	if cfg.Outputs.Loki.Enabled {
		lc.Loki = &logpkg.LokiConfig{
			Endpoint:      cfg.Outputs.Loki.Endpoint,
			Labels:        cfg.Outputs.Loki.Labels,
			BatchSize:     cfg.Outputs.Loki.BatchSize,
			FlushInterval: cfg.Outputs.Loki.BatchTimeout,
		}
	}

	return lc
}
