package control

import (
	"context"
	"encoding/json"
	"testing"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/observer"
)

type fakeQuerier struct {
	states map[string]observer.StateView
}

func (f *fakeQuerier) State(taskID string) (observer.StateView, bool) {
	v, ok := f.states[taskID]
	return v, ok
}
func (f *fakeQuerier) RawState(taskID string) (*checkpoint.RunnerState, bool) {
	if _, ok := f.states[taskID]; !ok {
		return nil, false
	}
	return &checkpoint.RunnerState{}, true
}
func (f *fakeQuerier) TaskStatuses(taskID string) ([]observer.StatusView, bool) {
	if _, ok := f.states[taskID]; !ok {
		return nil, false
	}
	return []observer.StatusView{{State: "ACTIVE", TimestampS: 1.0}}, true
}
func (f *fakeQuerier) TaskProcesses(taskID string) (observer.ProcessBucket, bool, error) {
	if _, ok := f.states[taskID]; !ok {
		return observer.ProcessBucket{}, false, nil
	}
	return observer.ProcessBucket{Running: []string{"main"}}, true, nil
}
func (f *fakeQuerier) Process(taskID, process string, run *int) (observer.ProcessView, bool) {
	if _, ok := f.states[taskID]; !ok {
		return observer.ProcessView{}, false
	}
	return observer.ProcessView{ProcessName: process, State: "RUNNING"}, true
}
func (f *fakeQuerier) Processes(taskIDs []string) map[string]map[string]observer.ProcessView {
	return map[string]map[string]observer.ProcessView{}
}
func (f *fakeQuerier) Logs(taskID, process string, run *int) (observer.LogsView, bool) {
	if _, ok := f.states[taskID]; !ok {
		return observer.LogsView{}, false
	}
	return observer.LogsView{Stdout: [2]string{"/tmp", "stdout"}}, true
}
func (f *fakeQuerier) Main(taskType string, offset, num int) observer.MainView {
	return observer.MainView{Type: taskType, Offset: offset, Num: num}
}
func (f *fakeQuerier) ValidPath(taskID, relPath string) (string, string, bool) {
	if relPath == "../escape" {
		return "", "", false
	}
	return "/sandbox/" + taskID, relPath, true
}
func (f *fakeQuerier) ValidFile(taskID, relPath string) (string, string, bool) {
	return f.ValidPath(taskID, relPath)
}
func (f *fakeQuerier) Files(taskID, path string) ([]observer.FileEntry, bool) {
	if _, ok := f.states[taskID]; !ok {
		return nil, false
	}
	return []observer.FileEntry{{Name: "stdout", IsDir: false}}, true
}

type fakeDaemon struct {
	reloaded, shutdown bool
	reloadErr          error
}

func (d *fakeDaemon) Status() DaemonStatus { return DaemonStatus{PID: 42, ActiveTasks: 1} }
func (d *fakeDaemon) Reload() error        { d.reloaded = true; return d.reloadErr }
func (d *fakeDaemon) Shutdown() error      { d.shutdown = true; return nil }

func newTestHandler() (*Handler, *fakeQuerier, *fakeDaemon) {
	q := &fakeQuerier{states: map[string]observer.StateView{"task-1": {TaskID: "task-1"}}}
	d := &fakeDaemon{}
	return NewHandler(q, d, nil), q, d
}

func TestHandleStateKnownAndUnknownTask(t *testing.T) {
	h, _, _ := newTestHandler()

	resp := h.Handle(context.Background(), Command{
		Method: "observer.state", ID: "1",
		Params: mustJSON(t, taskIDParams{TaskID: "task-1"}),
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	resp = h.Handle(context.Background(), Command{
		Method: "observer.state", ID: "2",
		Params: mustJSON(t, taskIDParams{TaskID: "nope"}),
	})
	if resp.Error == nil || resp.Error.Code != ErrCodeTaskNotFound {
		t.Fatalf("expected ErrCodeTaskNotFound, got %+v", resp.Error)
	}
}

func TestHandleTaskProcessesKnownAndUnknownTask(t *testing.T) {
	h, _, _ := newTestHandler()

	resp := h.Handle(context.Background(), Command{
		Method: "observer.task_processes", ID: "1",
		Params: mustJSON(t, taskIDParams{TaskID: "task-1"}),
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	resp = h.Handle(context.Background(), Command{
		Method: "observer.task_processes", ID: "2",
		Params: mustJSON(t, taskIDParams{TaskID: "nope"}),
	})
	if resp.Error == nil || resp.Error.Code != ErrCodeTaskNotFound {
		t.Fatalf("expected ErrCodeTaskNotFound, got %+v", resp.Error)
	}
}

func TestHandleInvalidParams(t *testing.T) {
	h, _, _ := newTestHandler()

	resp := h.Handle(context.Background(), Command{
		Method: "observer.process", ID: "1",
		Params: json.RawMessage(`{not json`),
	})
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
		t.Fatalf("expected ErrCodeInvalidParams, got %+v", resp.Error)
	}
}

func TestHandleValidPathRejectsEscape(t *testing.T) {
	h, _, _ := newTestHandler()

	resp := h.Handle(context.Background(), Command{
		Method: "observer.valid_path", ID: "1",
		Params: mustJSON(t, filesParams{TaskID: "task-1", Path: "../escape"}),
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["valid"] != false {
		t.Fatalf("expected valid=false, got %+v", resp.Result)
	}
}

func TestHandleDaemonReloadAndShutdown(t *testing.T) {
	h, _, d := newTestHandler()

	resp := h.Handle(context.Background(), Command{Method: "daemon.reload", ID: "1"})
	if resp.Error != nil || !d.reloaded {
		t.Fatalf("reload did not run: resp=%+v reloaded=%v", resp, d.reloaded)
	}

	resp = h.Handle(context.Background(), Command{Method: "daemon.shutdown", ID: "2"})
	if resp.Error != nil || !d.shutdown {
		t.Fatalf("shutdown did not run: resp=%+v shutdown=%v", resp, d.shutdown)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	h, _, _ := newTestHandler()

	resp := h.Handle(context.Background(), Command{Method: "bogus.method", ID: "1"})
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Fatalf("expected ErrCodeMethodNotFound, got %+v", resp.Error)
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
