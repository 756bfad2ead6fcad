package observer

import "taskobs.dev/observer/internal/resource"

// StateView is the presentation shape of State (spec.md §4.7).
type StateView struct {
	TaskID     string  `json:"task_id"`
	LaunchTime float64 `json:"launch_time"`
	Sandbox    string  `json:"sandbox"`
	Hostname   string  `json:"hostname"`
	User       string  `json:"user"`
}

// StatusView is one entry in TaskStatuses's result.
type StatusView struct {
	State      string  `json:"state"`
	TimestampS float64 `json:"timestamp"`
}

// ProcessView is the presentation shape of Process (spec.md §4.7).
type ProcessView struct {
	ProcessName string                  `json:"process_name"`
	ProcessRun  int                     `json:"process_run"`
	State       string                  `json:"state"`
	StartTime   *int64                  `json:"start_time,omitempty"`
	StopTime    *int64                  `json:"stop_time,omitempty"`
	Used        *resource.ProcessSample `json:"used,omitempty"`
}

// ProcessBucket is the presentation shape of TaskProcesses: process
// names grouped by their current run's state (spec.md §4.7's
// _task_processes).
type ProcessBucket struct {
	Waiting []string `json:"waiting"`
	Running []string `json:"running"`
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
	Killed  []string `json:"killed"`
}

// LogsView is the presentation shape of Logs.
type LogsView struct {
	Stdout [2]string `json:"stdout"` // [dir, "stdout"]
	Stderr [2]string `json:"stderr"` // [dir, "stderr"]
}

// TaskRow is one row of Main's result: config-derived fields merged
// with live state and a flattened resource sample (spec.md §4.7).
type TaskRow struct {
	TaskID          string         `json:"task_id"`
	Name            string         `json:"name"`
	User            string         `json:"user"`
	LaunchTimestamp float64        `json:"launch_timestamp"`
	State           string         `json:"state"`
	StateTimestamp  float64        `json:"state_timestamp"`
	Ports           map[string]int `json:"ports"`
	CPU             float64        `json:"cpu"`
	RAMBytes        uint64         `json:"ram_bytes"`
	DiskUsageBytes  uint64         `json:"disk_usage_bytes"`
}

// MainView is the result of Main.
type MainView struct {
	Tasks     []TaskRow `json:"tasks"`
	Type      string    `json:"type"`
	Offset    int       `json:"offset"`
	Num       int       `json:"num"`
	TaskCount int       `json:"task_count"`
}
