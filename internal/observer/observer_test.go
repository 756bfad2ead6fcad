package observer

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/pathspec"
	"taskobs.dev/observer/internal/resource"
)

// fakeMonitor is a resource.Monitor double that records its own
// lifecycle so tests can assert samplers are started/killed at the
// right reconciliation steps.
type fakeMonitor struct {
	started int32
	killed  int32
	sample  resource.Sample
}

func (m *fakeMonitor) Start() error { atomic.StoreInt32(&m.started, 1); return nil }
func (m *fakeMonitor) Kill()        { atomic.StoreInt32(&m.killed, 1) }
func (m *fakeMonitor) Sample() (time.Time, resource.Sample) {
	return time.Now(), m.sample
}
func (m *fakeMonitor) SampleByProcess(process string) (resource.ProcessSample, bool) {
	return resource.ProcessSample{CPU: m.sample.CPU, RAMBytes: m.sample.RAMBytes}, true
}

func fakeFactory(monitors map[string]*fakeMonitor) resource.Factory {
	return func(sandbox string, lookup resource.PIDLookup, list resource.ProcessLister) (resource.Monitor, error) {
		m := &fakeMonitor{sample: resource.Sample{CPU: 0.5, RAMBytes: 1024}}
		if sandbox != "" {
			monitors[sandbox] = m
		}
		return m, nil
	}
}

// seedTask writes a task's state-directory marker and runner checkpoint
// under root, in the given subtree ("active" or "finished").
func seedTask(t *testing.T, root, taskID, state string, header *checkpoint.Header, statuses []checkpoint.StatusEvent, procs map[string][]checkpoint.ProcessRun) {
	t.Helper()
	spec := pathspec.New(root)

	taskDir := filepath.Join(root, "tasks", state)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, taskID), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	ckptPath, err := spec.Given(pathspec.WithTaskID(taskID)).GetPath(pathspec.RunnerCheckpoint)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(ckptPath), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(ckptPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := checkpoint.NewWriter(f)
	if header != nil {
		if err := w.WriteHeader(*header); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range statuses {
		if err := w.WriteStatus(s); err != nil {
			t.Fatal(err)
		}
	}
	for _, runs := range procs {
		for _, r := range runs {
			if err := w.WriteProcessRun(r); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func removeTaskMarker(t *testing.T, root, taskID, state string) {
	t.Helper()
	if err := os.Remove(filepath.Join(root, "tasks", state, taskID)); err != nil {
		t.Fatal(err)
	}
}

func TestReconcilePromotesActiveTask(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}
	launch := time.Now().Add(-time.Minute).UnixMilli()

	seedTask(t, root, "task-1", "active",
		&checkpoint.Header{TaskID: "task-1", User: "alice", Hostname: "h1", LaunchTimeMs: launch, Sandbox: filepath.Join(root, "sandbox-1")},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: launch}},
		map[string][]checkpoint.ProcessRun{"web": {{Process: "web", State: checkpoint.ProcessRunning, PID: 1234}}},
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()

	active, finished := o.TaskIDCount()
	if active != 1 || finished != 0 {
		t.Fatalf("expected 1 active/0 finished, got %d/%d", active, finished)
	}

	state, ok := o.State("task-1")
	if !ok {
		t.Fatal("expected task-1 to have a state")
	}
	if state.User != "alice" || state.Hostname != "h1" {
		t.Fatalf("unexpected state view: %+v", state)
	}

	proc, ok := o.Process("task-1", "web", nil)
	if !ok || proc.State != "RUNNING" {
		t.Fatalf("expected web process RUNNING, got %+v ok=%v", proc, ok)
	}
	if proc.Used == nil {
		t.Fatal("expected a resource sample on a RUNNING process")
	}

	mon, ok := monitors[filepath.Join(root, "sandbox-1")]
	if !ok || atomic.LoadInt32(&mon.started) != 1 {
		t.Fatal("expected the sandbox's resource monitor to have been started")
	}
}

func TestReconcileTransitionsActiveToFinished(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}
	launch := time.Now().Add(-time.Hour).UnixMilli()

	seedTask(t, root, "task-2", "active",
		&checkpoint.Header{TaskID: "task-2", Sandbox: filepath.Join(root, "sandbox-2")},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: launch}},
		nil,
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()
	active, finished := o.TaskIDCount()
	if active != 1 || finished != 0 {
		t.Fatalf("expected promotion first, got %d/%d", active, finished)
	}

	// Runner finishes: task_id now appears in the finished subtree too
	// (spec.md §4.7's atomic-rename window), eventually disappearing
	// from the active one.
	finishTime := time.Now().UnixMilli()
	seedTask(t, root, "task-2", "finished",
		&checkpoint.Header{TaskID: "task-2", Sandbox: filepath.Join(root, "sandbox-2")},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: launch}, {State: checkpoint.TaskSuccess, TimestampMs: finishTime}},
		nil,
	)
	removeTaskMarker(t, root, "task-2", "active")

	o.reconcileOnce()
	active, finished = o.TaskIDCount()
	if active != 0 || finished != 1 {
		t.Fatalf("expected transition to finished, got %d/%d", active, finished)
	}

	mon := monitors[filepath.Join(root, "sandbox-2")]
	if atomic.LoadInt32(&mon.killed) != 1 {
		t.Fatal("expected the sampler to be killed on active-to-finished transition")
	}

	statuses, ok := o.TaskStatuses("task-2")
	if !ok || len(statuses) != 2 || statuses[1].State != "SUCCESS" {
		t.Fatalf("unexpected status history: %+v ok=%v", statuses, ok)
	}
}

func TestReconcileGarbageCollectsDisappearedTask(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}

	seedTask(t, root, "task-3", "finished",
		&checkpoint.Header{TaskID: "task-3"},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskSuccess, TimestampMs: time.Now().UnixMilli()}},
		nil,
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()
	if _, finished := o.TaskIDCount(); finished != 1 {
		t.Fatalf("expected the finished task registered, got %d", finished)
	}

	removeTaskMarker(t, root, "task-3", "finished")
	o.reconcileOnce()

	if _, finished := o.TaskIDCount(); finished != 0 {
		t.Fatalf("expected GC to drop the vanished task, got %d", finished)
	}
}

func TestMainPaginationWrapsNegativeOffset(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}

	mtimes := []int64{30, 20, 10}
	for i, mtime := range mtimes {
		taskID := string(rune('a' + i))
		seedTask(t, root, taskID, "finished", &checkpoint.Header{TaskID: taskID}, nil, nil)
		path := filepath.Join(root, "tasks", "finished", taskID)
		mt := time.Unix(mtime, 0)
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()

	view := o.Main("finished", -1, 1)
	if len(view.Tasks) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(view.Tasks))
	}
	if view.Tasks[0].TaskID != "c" {
		t.Fatalf("offset -1 should wrap to the oldest task c, got %q", view.Tasks[0].TaskID)
	}

	view = o.Main("finished", -10, 1)
	if len(view.Tasks) != 1 {
		t.Fatalf("expected clamped offset to still return 1 row, got %d", len(view.Tasks))
	}
	if view.Tasks[0].TaskID != "a" {
		t.Fatalf("offset -10 should clamp to the newest task a, got %q", view.Tasks[0].TaskID)
	}
}

func TestMainTaskCountReflectsRequestedType(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}

	seedTask(t, root, "fin-1", "finished", &checkpoint.Header{TaskID: "fin-1"}, nil, nil)
	seedTask(t, root, "fin-2", "finished", &checkpoint.Header{TaskID: "fin-2"}, nil, nil)
	seedTask(t, root, "act-1", "active",
		&checkpoint.Header{TaskID: "act-1"},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: time.Now().UnixMilli()}},
		nil,
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()

	if view := o.Main("active", 0, 20); view.TaskCount != 1 {
		t.Fatalf("active task_count = %d, want 1", view.TaskCount)
	}
	if view := o.Main("finished", 0, 20); view.TaskCount != 2 {
		t.Fatalf("finished task_count = %d, want 2", view.TaskCount)
	}
	if view := o.Main("all", 0, 20); view.TaskCount != 3 {
		t.Fatalf("all task_count = %d, want 3", view.TaskCount)
	}
}

func TestTaskProcessesBucketsByCurrentRunState(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}

	seedTask(t, root, "task-5", "active",
		&checkpoint.Header{TaskID: "task-5"},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: time.Now().UnixMilli()}},
		map[string][]checkpoint.ProcessRun{
			"idle":    {{Process: "idle", State: checkpoint.ProcessWaiting}},
			"worker":  {{Process: "worker", State: checkpoint.ProcessRunning}},
			"setup":   {{Process: "setup", State: checkpoint.ProcessSuccess}},
			"cleanup": {{Process: "cleanup", State: checkpoint.ProcessFailed}},
			"aborted": {{Process: "aborted", State: checkpoint.ProcessKilled}},
		},
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()

	bucket, ok, err := o.TaskProcesses("task-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected task-5 to be known")
	}
	if len(bucket.Waiting) != 1 || bucket.Waiting[0] != "idle" {
		t.Fatalf("Waiting = %v, want [idle]", bucket.Waiting)
	}
	if len(bucket.Running) != 1 || bucket.Running[0] != "worker" {
		t.Fatalf("Running = %v, want [worker]", bucket.Running)
	}
	if len(bucket.Success) != 1 || bucket.Success[0] != "setup" {
		t.Fatalf("Success = %v, want [setup]", bucket.Success)
	}
	if len(bucket.Failed) != 1 || bucket.Failed[0] != "cleanup" {
		t.Fatalf("Failed = %v, want [cleanup]", bucket.Failed)
	}
	if len(bucket.Killed) != 1 || bucket.Killed[0] != "aborted" {
		t.Fatalf("Killed = %v, want [aborted]", bucket.Killed)
	}

	if _, ok, _ := o.TaskProcesses("missing"); ok {
		t.Fatal("expected unknown task to report ok == false")
	}
}

func TestTaskProcessesRaisesUnexpectedState(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}

	seedTask(t, root, "task-6", "active",
		&checkpoint.Header{TaskID: "task-6"},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: time.Now().UnixMilli()}},
		map[string][]checkpoint.ProcessRun{
			"corrupt": {{Process: "corrupt", State: checkpoint.ProcessState(99)}},
		},
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()

	_, ok, err := o.TaskProcesses("task-6")
	if !ok {
		t.Fatal("expected task-6 to be known")
	}
	if !errors.Is(err, checkpoint.ErrUnexpectedState) {
		t.Fatalf("expected ErrUnexpectedState, got %v", err)
	}
}

func TestValidPathRejectsSandboxEscape(t *testing.T) {
	root := t.TempDir()
	monitors := map[string]*fakeMonitor{}
	sandbox := filepath.Join(root, "sandbox-4")
	if err := os.MkdirAll(sandbox, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(sandbox, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	seedTask(t, root, "task-4", "active",
		&checkpoint.Header{TaskID: "task-4", Sandbox: sandbox},
		[]checkpoint.StatusEvent{{State: checkpoint.TaskActive, TimestampMs: time.Now().UnixMilli()}},
		nil,
	)

	o, err := New(root, fakeFactory(monitors))
	if err != nil {
		t.Fatal(err)
	}
	o.reconcileOnce()

	if _, _, ok := o.ValidPath("task-4", "sub"); !ok {
		t.Fatal("expected a path inside the sandbox to validate")
	}
	if _, _, ok := o.ValidPath("task-4", "../../etc/passwd"); ok {
		t.Fatal("expected a path escaping the sandbox to be rejected")
	}
}
