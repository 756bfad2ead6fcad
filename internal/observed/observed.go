// Package observed models the two handle variants TaskObserver keeps
// in its registries: a live ActiveTask backed by a TaskMonitor, and a
// terminal FinishedTask whose state is read once and cached.
package observed

import (
	"sync"
	"time"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/monitor"
	"taskobs.dev/observer/internal/resource"
	"taskobs.dev/observer/internal/taskconfig"
)

// Task is the common surface both variants implement (spec.md §4.6).
// Type is immutable for a given handle instance: an active→finished
// transition destroys the ActiveTask and creates a fresh FinishedTask
// for the same task id, it never mutates one into the other.
type Task interface {
	TaskID() string
	MTime() time.Time
	State() *checkpoint.RunnerState
	Config() (*taskconfig.TaskConfig, bool)
}

// configLoader reads and parses the on-disk task config once a header
// is available. Factored out so tests can stub it.
type configLoader func(ctx taskconfig.Context) (*taskconfig.TaskConfig, bool)

type configCache struct {
	once   sync.Once
	loaded bool
	cfg    *taskconfig.TaskConfig
}

func (c *configCache) get(state *checkpoint.RunnerState, load configLoader) (*taskconfig.TaskConfig, bool) {
	if state == nil || state.Header == nil {
		return nil, false // deferred: no header yet (spec.md §3 invariant 4)
	}
	c.once.Do(func() {
		ctx := taskconfig.Context{
			TaskID: state.Header.TaskID,
			User:   state.Header.User,
			Ports:  state.Header.Ports,
		}
		c.cfg, c.loaded = load(ctx)
	})
	return c.cfg, c.loaded
}

// ActiveTask is a live task: State reads through to its TaskMonitor on
// every call, so it reflects the runner's checkpoint as it is appended.
type ActiveTask struct {
	taskID   string
	mtime    time.Time
	monitor  *monitor.TaskMonitor
	resource resource.Monitor
	load     configLoader
	cfgOnce  configCache
}

// NewActiveTask constructs a handle. Callers are responsible for having
// already called resource.Monitor.Start(); NewActiveTask does not start
// it, so ownership/sequencing stays explicit at the call site (the
// reconciliation loop in internal/observer).
func NewActiveTask(taskID string, mtime time.Time, mon *monitor.TaskMonitor, res resource.Monitor, load func(taskconfig.Context) (*taskconfig.TaskConfig, bool)) *ActiveTask {
	return &ActiveTask{taskID: taskID, mtime: mtime, monitor: mon, resource: res, load: load}
}

func (t *ActiveTask) TaskID() string                { return t.taskID }
func (t *ActiveTask) MTime() time.Time              { return t.mtime }
func (t *ActiveTask) State() *checkpoint.RunnerState { return t.monitor.GetState() }
func (t *ActiveTask) Resource() resource.Monitor     { return t.resource }
func (t *ActiveTask) Monitor() *monitor.TaskMonitor  { return t.monitor }

func (t *ActiveTask) Config() (*taskconfig.TaskConfig, bool) {
	return t.cfgOnce.get(t.State(), t.load)
}

// FinishedTask is a terminal task: its state is computed once (by
// replaying the full checkpoint) and cached for the handle's lifetime,
// per spec.md §4.6.
type FinishedTask struct {
	taskID string
	mtime  time.Time
	load   configLoader

	state   *checkpoint.RunnerState
	cfgOnce configCache
}

// NewFinishedTask replays the full checkpoint once, at construction
// time, and caches the result for the handle's lifetime.
func NewFinishedTask(taskID string, mtime time.Time, replay func() *checkpoint.RunnerState, load func(taskconfig.Context) (*taskconfig.TaskConfig, bool)) *FinishedTask {
	return &FinishedTask{taskID: taskID, mtime: mtime, load: load, state: replay()}
}

func (t *FinishedTask) TaskID() string                { return t.taskID }
func (t *FinishedTask) MTime() time.Time               { return t.mtime }
func (t *FinishedTask) State() *checkpoint.RunnerState { return t.state }

func (t *FinishedTask) Config() (*taskconfig.TaskConfig, bool) {
	return t.cfgOnce.get(t.State(), t.load)
}

var (
	_ Task = (*ActiveTask)(nil)
	_ Task = (*FinishedTask)(nil)
)
