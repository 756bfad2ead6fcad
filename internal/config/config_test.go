package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
taskobs:
  observer:
    root: "/var/lib/taskobs"
    polling_interval: "500ms"
  control:
    socket: "/tmp/test.sock"
    pid_file: "/tmp/test.pid"
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "0.0.0.0:9090"
    path: "/metrics"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Observer.Root != "/var/lib/taskobs" {
		t.Errorf("Observer.Root = %q", cfg.Observer.Root)
	}
	if cfg.Observer.PollingInterval != "500ms" {
		t.Errorf("Observer.PollingInterval = %q", cfg.Observer.PollingInterval)
	}
	if cfg.Control.Socket != "/tmp/test.sock" {
		t.Errorf("Control.Socket = %q", cfg.Control.Socket)
	}
	if cfg.Control.PIDFile != "/tmp/test.pid" {
		t.Errorf("Control.PIDFile = %q", cfg.Control.PIDFile)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Metrics.Listen != "0.0.0.0:9090" {
		t.Errorf("Metrics.Listen = %q", cfg.Metrics.Listen)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `taskobs: {}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Observer.Root == "" {
		t.Error("expected a default observer.root")
	}
	if cfg.Observer.PollingInterval != "1s" {
		t.Errorf("Observer.PollingInterval default = %q, want 1s", cfg.Observer.PollingInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level default = %q, want info", cfg.Log.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
	if cfg.Control.Socket == "" {
		t.Error("expected a default control socket")
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
taskobs:
  log:
    level: "verbose"
`))
	if err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
}

func TestLoadRejectsInvalidLogFormat(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
taskobs:
  log:
    format: "xml"
`))
	if err == nil {
		t.Fatal("expected an error for an invalid log format")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
