package observed

import (
	"testing"
	"time"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/taskconfig"
)

func TestFinishedTaskConfigDeferredWithoutHeader(t *testing.T) {
	ft := NewFinishedTask("t1", time.Now(), func() *checkpoint.RunnerState {
		return checkpoint.NewRunnerState() // no header
	}, func(taskconfig.Context) (*taskconfig.TaskConfig, bool) {
		t.Fatal("load should not be called without a header")
		return nil, false
	})

	if _, ok := ft.Config(); ok {
		t.Fatal("expected Config to be deferred without a header")
	}
}

func TestFinishedTaskConfigMemoized(t *testing.T) {
	calls := 0
	ft := NewFinishedTask("t1", time.Now(), func() *checkpoint.RunnerState {
		rs := checkpoint.NewRunnerState()
		rs.Header = &checkpoint.Header{TaskID: "t1"}
		return rs
	}, func(taskconfig.Context) (*taskconfig.TaskConfig, bool) {
		calls++
		return &taskconfig.TaskConfig{ID: "t1"}, true
	})

	ft.Config()
	ft.Config()
	if calls != 1 {
		t.Fatalf("expected config load to be memoized, got %d calls", calls)
	}
}
