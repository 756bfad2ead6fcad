// Package monitor owns an incremental reader over one active task's
// checkpoint log.
package monitor

import (
	"io"
	"os"
	"sync"

	"taskobs.dev/observer/internal/checkpoint"
)

// TaskMonitor returns the current RunnerState for one task, resuming
// from the last file position on repeated calls rather than re-reading
// the whole log. Safe for concurrent use: GetState serializes internally
// (spec.md §4.4 requires this, since both the reconciliation loop and
// query handlers call it on the same active handle).
type TaskMonitor struct {
	path     string
	replayer *checkpoint.Replayer

	mu     sync.Mutex
	offset int64
	state  *checkpoint.RunnerState
}

// New returns a TaskMonitor reading the checkpoint log at path.
func New(path string, replayer *checkpoint.Replayer) *TaskMonitor {
	return &TaskMonitor{
		path:     path,
		replayer: replayer,
		state:    checkpoint.NewRunnerState(),
	}
}

// GetState returns a snapshot of the task's RunnerState consistent at
// some instant no later than the call. It never returns an error: if
// the checkpoint file is temporarily unreadable, the last known state
// is returned unchanged (transient I/O, spec.md §7).
func (m *TaskMonitor) GetState() *checkpoint.RunnerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if err != nil {
		return m.state.Clone()
	}
	defer f.Close()

	if _, err := f.Seek(m.offset, io.SeekStart); err != nil {
		return m.state.Clone()
	}

	consumed := m.replayer.ReplayInto(f, m.state)
	m.offset += consumed
	return m.state.Clone()
}
