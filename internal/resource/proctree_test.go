package resource

import (
	"os"
	"testing"
	"time"
)

func TestProcTreeMonitorSamplesSelf(t *testing.T) {
	pid := os.Getpid()
	lookup := func(name string) (int, bool) { return pid, true }
	list := func() []string { return []string{"self"} }

	m := newProcTreeMonitor(t.TempDir(), lookup, list, Config{
		SampleInterval: 10 * time.Millisecond,
		DiskInterval:   10 * time.Millisecond,
	}.withDefaults())

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Kill()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := m.SampleByProcess("self"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a sample")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProcTreeMonitorKillFreezesLastSample(t *testing.T) {
	lookup := func(name string) (int, bool) { return 0, false }
	list := func() []string { return nil }

	m := newProcTreeMonitor("", lookup, list, Config{}.withDefaults())
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	_, before := m.Sample()
	m.Kill()
	// Give the loop goroutine a moment to have actually stopped, then
	// confirm Sample still returns a value rather than blocking/erroring.
	time.Sleep(10 * time.Millisecond)
	_, after := m.Sample()
	if before != after {
		t.Fatalf("expected frozen sample after Kill, got %+v vs %+v", before, after)
	}
}

func TestProcTreeMonitorStartIsIdempotent(t *testing.T) {
	m := newProcTreeMonitor("", func(string) (int, bool) { return 0, false }, func() []string { return nil }, Config{}.withDefaults())
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got error: %v", err)
	}
	m.Kill()
}
