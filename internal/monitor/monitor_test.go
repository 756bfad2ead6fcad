package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"taskobs.dev/observer/internal/checkpoint"
)

func TestGetStateIsIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := checkpoint.NewWriter(f)
	if err := w.WriteHeader(checkpoint.Header{TaskID: "t1"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteStatus(checkpoint.StatusEvent{State: checkpoint.TaskActive, TimestampMs: 1}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	m := New(path, checkpoint.NewReplayer(nil))
	first := m.GetState()
	if len(first.Statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(first.Statuses))
	}

	f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	w = checkpoint.NewWriter(f)
	if err := w.WriteStatus(checkpoint.StatusEvent{State: checkpoint.TaskSuccess, TimestampMs: 2}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	second := m.GetState()
	if len(second.Statuses) != 2 {
		t.Fatalf("expected 2 statuses after append, got %d", len(second.Statuses))
	}

	// Mutating the returned snapshot must not affect the monitor's
	// internal state (Clone isolation).
	second.Statuses[0].TimestampMs = 999
	third := m.GetState()
	if third.Statuses[0].TimestampMs == 999 {
		t.Fatalf("GetState leaked internal state to caller")
	}
}

func TestGetStateMissingFileReturnsLastKnown(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), checkpoint.NewReplayer(nil))
	state := m.GetState()
	if state == nil {
		t.Fatal("expected a non-nil empty state, not nil")
	}
	if state.Header != nil {
		t.Fatalf("expected no header, got %+v", state.Header)
	}
}
