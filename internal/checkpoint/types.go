// Package checkpoint reconstructs a task's RunnerState by replaying its
// append-only checkpoint log.
package checkpoint

import "errors"

// TaskRunState is the task-level lifecycle state recorded in the
// runner's status history.
type TaskRunState int

const (
	TaskUnknown TaskRunState = iota
	TaskActive
	TaskSuccess
	TaskFailed
	TaskKilled
	TaskLost
)

var taskRunStateNames = map[TaskRunState]string{
	TaskActive:  "ACTIVE",
	TaskSuccess: "SUCCESS",
	TaskFailed:  "FAILED",
	TaskKilled:  "KILLED",
	TaskLost:    "LOST",
}

// Name renders s using the closed variant's name, or "UNKNOWN" for any
// value outside the known set — the Go analogue of the source's
// _VALUES_TO_NAMES reflection table (spec.md §9).
func (s TaskRunState) Name() string {
	if n, ok := taskRunStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ProcessState is a single process run's lifecycle state.
type ProcessState int

const (
	// ProcessWaiting is also the zero value: an absent/null run-state
	// is treated as WAITING per spec.md §3.
	ProcessWaiting ProcessState = iota
	ProcessForked
	ProcessRunning
	ProcessSuccess
	ProcessFailed
	ProcessKilled
	ProcessLost
)

var processStateNames = map[ProcessState]string{
	ProcessWaiting: "WAITING",
	ProcessForked:  "FORKED",
	ProcessRunning: "RUNNING",
	ProcessSuccess: "SUCCESS",
	ProcessFailed:  "FAILED",
	ProcessKilled:  "KILLED",
	ProcessLost:    "LOST",
}

func (s ProcessState) Name() string {
	if n, ok := processStateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ErrUnexpectedState is the programming-fault signal raised when a
// process-state bucketing routine encounters a state value outside the
// closed variant set (spec.md §7, §4.7's _task_processes).
var ErrUnexpectedState = errors.New("checkpoint: unexpected process state")

// Header is the task's launch-time metadata, written once by the
// runner at task start.
type Header struct {
	TaskID       string
	User         string
	Hostname     string
	LaunchTimeMs int64
	Sandbox      string
	LogDir       string
	Ports        map[string]int
}

// StatusEvent is one entry in the task's status history.
type StatusEvent struct {
	State       TaskRunState
	TimestampMs int64
}

// ProcessRun is one execution attempt of a named process.
type ProcessRun struct {
	Process   string
	State     ProcessState
	PID       int    // 0 if the process never forked (still WAITING)
	StartTime *int64 // unix seconds, nil if not yet started
	StopTime  *int64 // unix seconds, nil if still running or never started
}

// RunnerState is the folded result of replaying a checkpoint log: a
// header (once present), an ordered status history, and per-process
// run histories, each ordered by run number (0-based).
type RunnerState struct {
	Header    *Header
	Statuses  []StatusEvent
	Processes map[string][]ProcessRun
}

// NewRunnerState returns an empty, header-less RunnerState, the state
// of a task about whose runner nothing has been observed yet.
func NewRunnerState() *RunnerState {
	return &RunnerState{Processes: make(map[string][]ProcessRun)}
}

// Clone returns a deep copy, safe for a caller to read after the
// original is mutated further by a concurrent replay.
func (rs *RunnerState) Clone() *RunnerState {
	clone := &RunnerState{
		Processes: make(map[string][]ProcessRun, len(rs.Processes)),
	}
	if rs.Header != nil {
		h := *rs.Header
		if rs.Header.Ports != nil {
			h.Ports = make(map[string]int, len(rs.Header.Ports))
			for k, v := range rs.Header.Ports {
				h.Ports[k] = v
			}
		}
		clone.Header = &h
	}
	clone.Statuses = append([]StatusEvent(nil), rs.Statuses...)
	for name, runs := range rs.Processes {
		clone.Processes[name] = append([]ProcessRun(nil), runs...)
	}
	return clone
}

// CurrentStatus returns the most recent status, or the zero StatusEvent
// and false if no status has been recorded yet.
func (rs *RunnerState) CurrentStatus() (StatusEvent, bool) {
	if len(rs.Statuses) == 0 {
		return StatusEvent{}, false
	}
	return rs.Statuses[len(rs.Statuses)-1], true
}

// ResolveRun normalizes a possibly-nil, possibly-negative run pointer
// against process's history, preserving the source's check order
// exactly (spec.md §9's Open Question): a positive out-of-range run is
// empty (returns -1, false), while run == nil means "most recent" and
// a negative run wraps modulo the history length.
func (rs *RunnerState) ResolveRun(process string, run *int) (int, bool) {
	history := rs.Processes[process]
	if len(history) == 0 {
		return -1, false
	}
	if run == nil {
		return len(history) - 1, true
	}
	r := *run
	if r >= len(history) {
		return -1, false
	}
	if r < 0 {
		r = ((r % len(history)) + len(history)) % len(history)
	}
	return r, true
}

// StateTimestamp returns the timestamp (ms) of the first status event
// equal to the current state that follows a status of a different
// state. Per spec.md §9's resolved Open Question, this is 0 when no
// such boundary exists (including the single-status case).
func (rs *RunnerState) StateTimestamp() int64 {
	n := len(rs.Statuses)
	if n == 0 {
		return 0
	}
	current := rs.Statuses[n-1].State
	i := n - 1
	for i > 0 && rs.Statuses[i-1].State == current {
		i--
	}
	if i == 0 {
		// Either a single status, or every status shares the current
		// state — no preceding different-state boundary exists.
		return 0
	}
	return rs.Statuses[i].TimestampMs
}
