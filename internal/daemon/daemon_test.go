package daemon

import (
	"testing"

	"taskobs.dev/observer/internal/config"
)

func TestBuildLoggerConfigTranslatesOutputs(t *testing.T) {
	cfg := config.LogConfig{
		Level:  "debug",
		Format: "json",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    "/var/log/taskobs/taskobs.log",
				Rotation: config.RotationConfig{
					MaxSizeMB: 50, MaxAgeDays: 7, MaxBackups: 3, Compress: true,
				},
			},
		},
	}

	lc := buildLoggerConfig(cfg)
	if lc.Level != "debug" {
		t.Fatalf("Level = %q, want debug", lc.Level)
	}
	if lc.File == nil {
		t.Fatal("expected File appender to be wired when Outputs.File.Enabled")
	}
	if lc.File.Filename != cfg.Outputs.File.Path {
		t.Fatalf("Filename = %q, want %q", lc.File.Filename, cfg.Outputs.File.Path)
	}
	if lc.Loki != nil {
		t.Fatal("expected Loki to stay nil when Outputs.Loki.Enabled is false")
	}
}

func TestBuildLoggerConfigWithLokiEnabled(t *testing.T) {
	cfg := config.LogConfig{
		Level: "info",
		Outputs: config.LogOutputsConfig{
			Loki: config.LokiOutputConfig{
				Enabled:      true,
				Endpoint:     "http://loki:3100",
				BatchSize:    100,
				BatchTimeout: "5s",
			},
		},
	}

	lc := buildLoggerConfig(cfg)
	if lc.Loki == nil {
		t.Fatal("expected Loki appender to be wired when Outputs.Loki.Enabled")
	}
	if lc.Loki.Endpoint != cfg.Outputs.Loki.Endpoint {
		t.Fatalf("Endpoint = %q, want %q", lc.Loki.Endpoint, cfg.Outputs.Loki.Endpoint)
	}
}

func TestTriggerShutdownDoesNotBlockWhenUnread(t *testing.T) {
	d := &Daemon{shutdownChan: make(chan struct{}, 1)}
	d.TriggerShutdown()
	d.TriggerShutdown() // second call must not block even though nobody drained the first

	select {
	case <-d.shutdownChan:
	default:
		t.Fatal("expected a pending shutdown signal")
	}
}
