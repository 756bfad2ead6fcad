package observer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/observed"
	"taskobs.dev/observer/internal/pathspec"
)

func (o *TaskObserver) recordQuery(name string, start time.Time) {
	o.metrics.Query(name, time.Since(start))
}

// State returns the header-derived summary for task_id, or false if
// the task is unknown or has no header yet (spec.md §4.7).
func (o *TaskObserver) State(taskID string) (StateView, bool) {
	defer o.recordQuery("state", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()

	h := o.handleLocked(taskID)
	if h == nil {
		return StateView{}, false
	}
	rs := h.State()
	if rs == nil || rs.Header == nil {
		return StateView{}, false
	}
	return StateView{
		TaskID:     taskID,
		LaunchTime: float64(rs.Header.LaunchTimeMs) / 1000.0,
		Sandbox:    rs.Header.Sandbox,
		Hostname:   rs.Header.Hostname,
		User:       rs.Header.User,
	}, true
}

// RawState returns direct access to the task's RunnerState.
func (o *TaskObserver) RawState(taskID string) (*checkpoint.RunnerState, bool) {
	defer o.recordQuery("raw_state", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()

	h := o.handleLocked(taskID)
	if h == nil {
		return nil, false
	}
	return h.State(), true
}

// TaskStatuses returns the task's status history as (name, timestamp_s) pairs.
func (o *TaskObserver) TaskStatuses(taskID string) ([]StatusView, bool) {
	defer o.recordQuery("task_statuses", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()

	h := o.handleLocked(taskID)
	if h == nil {
		return nil, false
	}
	rs := h.State()
	if rs == nil {
		return nil, false
	}
	out := make([]StatusView, 0, len(rs.Statuses))
	for _, s := range rs.Statuses {
		out = append(out, StatusView{State: s.State.Name(), TimestampS: float64(s.TimestampMs) / 1000.0})
	}
	return out, true
}

// Process returns one process run's record. A nil run means "most
// recent"; the out-of-range/negative-wrap check order is preserved
// exactly as spec.md §9 describes.
func (o *TaskObserver) Process(taskID, process string, run *int) (ProcessView, bool) {
	defer o.recordQuery("process", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processLocked(taskID, process, run)
}

func (o *TaskObserver) processLocked(taskID, process string, run *int) (ProcessView, bool) {
	h := o.handleLocked(taskID)
	if h == nil {
		return ProcessView{}, false
	}
	rs := h.State()
	if rs == nil {
		return ProcessView{}, false
	}
	idx, ok := rs.ResolveRun(process, run)
	if !ok {
		return ProcessView{}, false
	}
	pr := rs.Processes[process][idx]
	view := ProcessView{
		ProcessName: process,
		ProcessRun:  idx,
		State:       pr.State.Name(),
		StartTime:   pr.StartTime,
		StopTime:    pr.StopTime,
	}
	if pr.State == checkpoint.ProcessRunning {
		if active, ok := h.(*observed.ActiveTask); ok {
			if sample, sok := active.Resource().SampleByProcess(process); sok {
				view.Used = &sample
			}
		}
	}
	return view, true
}

// Processes returns every named process's current-run record for each
// requested task_id.
func (o *TaskObserver) Processes(taskIDs []string) map[string]map[string]ProcessView {
	defer o.recordQuery("processes", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]map[string]ProcessView, len(taskIDs))
	for _, t := range taskIDs {
		h := o.handleLocked(t)
		if h == nil {
			continue
		}
		rs := h.State()
		if rs == nil {
			continue
		}
		procs := make(map[string]ProcessView, len(rs.Processes))
		for name := range rs.Processes {
			if view, ok := o.processLocked(t, name, nil); ok {
				procs[name] = view
			}
		}
		out[t] = procs
	}
	return out
}

// TaskProcesses buckets task_id's processes by the state of their most
// recent run (spec.md §4.7's _task_processes, grounded on
// observer.py:360-400). Unknown task_id or a header-less task returns
// an empty bucket and ok == false, matching every other query's
// neutral-empty-value handling (spec.md §7). A process run stuck on a
// ProcessState value outside the closed variant set is the one
// programming fault this layer raises (spec.md §7): it comes back as
// checkpoint.ErrUnexpectedState, fatal to this query alone.
func (o *TaskObserver) TaskProcesses(taskID string) (ProcessBucket, bool, error) {
	defer o.recordQuery("task_processes", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.taskProcessesLocked(taskID)
}

func (o *TaskObserver) taskProcessesLocked(taskID string) (ProcessBucket, bool, error) {
	h := o.handleLocked(taskID)
	if h == nil {
		return ProcessBucket{}, false, nil
	}
	rs := h.State()
	if rs == nil || rs.Header == nil {
		return ProcessBucket{}, false, nil
	}

	var bucket ProcessBucket
	for process, runs := range rs.Processes {
		if len(runs) == 0 {
			bucket.Waiting = append(bucket.Waiting, process)
			continue
		}
		switch runs[len(runs)-1].State {
		case checkpoint.ProcessWaiting, checkpoint.ProcessLost:
			bucket.Waiting = append(bucket.Waiting, process)
		case checkpoint.ProcessForked, checkpoint.ProcessRunning:
			bucket.Running = append(bucket.Running, process)
		case checkpoint.ProcessSuccess:
			bucket.Success = append(bucket.Success, process)
		case checkpoint.ProcessFailed:
			bucket.Failed = append(bucket.Failed, process)
		case checkpoint.ProcessKilled:
			bucket.Killed = append(bucket.Killed, process)
		default:
			return ProcessBucket{}, true, fmt.Errorf("task %s process %s: %w", taskID, process, checkpoint.ErrUnexpectedState)
		}
	}
	sort.Strings(bucket.Waiting)
	sort.Strings(bucket.Running)
	sort.Strings(bucket.Success)
	sort.Strings(bucket.Failed)
	sort.Strings(bucket.Killed)
	return bucket, true, nil
}

// Logs resolves the stdout/stderr log paths for one process run.
func (o *TaskObserver) Logs(taskID, process string, run *int) (LogsView, bool) {
	defer o.recordQuery("logs", time.Now())
	o.mu.Lock()
	defer o.mu.Unlock()

	h := o.handleLocked(taskID)
	if h == nil {
		return LogsView{}, false
	}
	rs := h.State()
	if rs == nil {
		return LogsView{}, false
	}
	idx, ok := rs.ResolveRun(process, run)
	if !ok {
		return LogsView{}, false
	}

	spec := o.root.Given(pathspec.WithTaskID(taskID), pathspec.WithProcess(process), pathspec.WithRun(idx))
	dir, err := spec.GetPath(pathspec.ProcessLogDir)
	if err != nil {
		return LogsView{}, false
	}
	return LogsView{Stdout: [2]string{dir, "stdout"}, Stderr: [2]string{dir, "stderr"}}, true
}

// Main returns a paginated, mtime-descending listing of tasks, merging
// config-derived fields with live state (spec.md §4.7).
func (o *TaskObserver) Main(taskType string, offset, num int) MainView {
	defer o.recordQuery("main", time.Now())
	if taskType == "" {
		taskType = "all"
	}
	if num <= 0 {
		num = 20
	}

	o.mu.Lock()
	rows := o.rowsLocked(taskType)
	taskCount := o.taskCountLocked(taskType)
	o.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].mtime.After(rows[j].mtime) })

	count := len(rows)
	if offset < 0 {
		if -offset < count {
			offset = count + offset
		} else {
			offset = 0
		}
	}
	if offset > count {
		offset = count
	}
	end := offset + num
	if end > count {
		end = count
	}

	out := make([]TaskRow, 0, end-offset)
	for _, r := range rows[offset:end] {
		out = append(out, r.TaskRow)
	}

	return MainView{Tasks: out, Type: taskType, Offset: offset, Num: num, TaskCount: taskCount}
}

// taskCountLocked returns task_count()[type] (observer.py:466): the
// registry size for the requested type, not a flat total across both.
func (o *TaskObserver) taskCountLocked(taskType string) int {
	switch taskType {
	case "active":
		return len(o.active)
	case "finished":
		return len(o.finished)
	default:
		return len(o.active) + len(o.finished)
	}
}

type sortableRow struct {
	TaskRow
	mtime time.Time
}

func (o *TaskObserver) rowsLocked(taskType string) []sortableRow {
	var rows []sortableRow
	appendHandle := func(t string, h observed.Task) {
		row, ok := o.buildRowLocked(t, h)
		if !ok {
			return
		}
		rows = append(rows, sortableRow{TaskRow: row, mtime: h.MTime()})
	}

	if taskType == "active" || taskType == "all" {
		for t, h := range o.active {
			appendHandle(t, h)
		}
	}
	if taskType == "finished" || taskType == "all" {
		for t, h := range o.finished {
			appendHandle(t, h)
		}
	}
	return rows
}

func (o *TaskObserver) buildRowLocked(taskID string, h observed.Task) (TaskRow, bool) {
	rs := h.State()
	row := TaskRow{TaskID: taskID}

	if rs != nil && rs.Header != nil {
		row.LaunchTimestamp = float64(rs.Header.LaunchTimeMs) / 1000.0
		row.Ports = rs.Header.Ports
	}
	if cfg, ok := h.Config(); ok {
		row.Name = cfg.Name
		row.User = cfg.User
	}
	if rs != nil {
		if cur, ok := rs.CurrentStatus(); ok {
			row.State = cur.State.Name()
		}
		row.StateTimestamp = float64(rs.StateTimestamp()) / 1000.0
	}
	if active, ok := h.(*observed.ActiveTask); ok {
		_, sample := active.Resource().Sample()
		row.CPU = sample.CPU
		row.RAMBytes = sample.RAMBytes
		row.DiskUsageBytes = sample.DiskUsageBytes
	}
	return row, true
}

// realish resolves symlinks when the path exists, and falls back to a
// lexical Clean when it doesn't — valid_path must work for paths that
// don't exist yet, only valid_file requires existence.
func realish(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// ValidPath implements the sandbox-containment check (spec.md §4.7,
// §7's "sandbox escape attempt" handling): the attempted relpath is
// never included in the returned values on failure.
func (o *TaskObserver) ValidPath(taskID, relPath string) (base, rel string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validPathLocked(taskID, relPath)
}

func (o *TaskObserver) validPathLocked(taskID, relPath string) (string, string, bool) {
	h := o.handleLocked(taskID)
	if h == nil {
		return "", "", false
	}
	rs := h.State()
	if rs == nil || rs.Header == nil || rs.Header.Sandbox == "" {
		return "", "", false
	}
	if relPath == "" {
		relPath = "."
	}

	base := realish(rs.Header.Sandbox)
	target := realish(filepath.Join(base, relPath))

	relOut, err := filepath.Rel(base, target)
	if err != nil || relOut == ".." || strings.HasPrefix(relOut, ".."+string(filepath.Separator)) {
		return "", "", false
	}
	if relOut == "." {
		relOut = ""
	}
	return base, relOut, true
}

// ValidFile additionally requires the resolved target to be an
// existing regular file.
func (o *TaskObserver) ValidFile(taskID, relPath string) (string, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	base, rel, ok := o.validPathLocked(taskID, relPath)
	if !ok {
		return "", "", false
	}
	info, err := os.Stat(filepath.Join(base, rel))
	if err != nil || !info.Mode().IsRegular() {
		return "", "", false
	}
	return base, rel, true
}

// FileEntry is one child returned by Files.
type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// Files lists the direct children of path within task_id's sandbox,
// classified as dirs vs files. Symlinks are subject to the same
// realpath containment rule as ValidPath.
func (o *TaskObserver) Files(taskID, path string) ([]FileEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	base, rel, ok := o.validPathLocked(taskID, path)
	if !ok {
		return nil, false
	}
	dir := filepath.Join(base, rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}

	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		childRel := filepath.Join(rel, e.Name())
		if _, _, entryOK := o.validPathLocked(taskID, childRel); !entryOK {
			continue // symlink escapes the sandbox: exclude, don't fail the listing
		}
		info, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, FileEntry{Name: e.Name(), IsDir: info.IsDir()})
	}
	return out, true
}
