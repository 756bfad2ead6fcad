package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/observer"
)

// Querier is the subset of *observer.TaskObserver the control plane
// dispatches to. Defined as an interface so handler tests can supply a
// fake without standing up a real reconciliation loop.
type Querier interface {
	State(taskID string) (observer.StateView, bool)
	RawState(taskID string) (*checkpoint.RunnerState, bool)
	TaskStatuses(taskID string) ([]observer.StatusView, bool)
	TaskProcesses(taskID string) (observer.ProcessBucket, bool, error)
	Process(taskID, process string, run *int) (observer.ProcessView, bool)
	Processes(taskIDs []string) map[string]map[string]observer.ProcessView
	Logs(taskID, process string, run *int) (observer.LogsView, bool)
	Main(taskType string, offset, num int) observer.MainView
	ValidPath(taskID, relPath string) (string, string, bool)
	ValidFile(taskID, relPath string) (string, string, bool)
	Files(taskID, path string) ([]observer.FileEntry, bool)
}

// DaemonStatus is the result of daemon.status.
type DaemonStatus struct {
	PID           int    `json:"pid"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveTasks   int    `json:"active_tasks"`
	FinishedTasks int    `json:"finished_tasks"`
}

// DaemonControl is the subset of daemon lifecycle operations the control
// plane exposes alongside the read-only observer query surface.
type DaemonControl interface {
	Status() DaemonStatus
	Reload() error
	Shutdown() error
}

// Handler dispatches Command.Method to either Querier or DaemonControl.
type Handler struct {
	observer Querier
	daemon   DaemonControl
	log      logrus.FieldLogger
}

// NewHandler builds a Handler bound to the given observer and daemon.
func NewHandler(obs Querier, daemon DaemonControl, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{observer: obs, daemon: daemon, log: log}
}

type taskIDParams struct {
	TaskID string `json:"task_id"`
}

type processParams struct {
	TaskID      string `json:"task_id"`
	ProcessName string `json:"process_name"`
	Run         *int   `json:"run,omitempty"`
}

type processesParams struct {
	TaskIDs []string `json:"task_ids"`
}

type filesParams struct {
	TaskID string `json:"task_id"`
	Path   string `json:"path"`
}

type mainParams struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Num    int    `json:"num"`
}

func errResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}

func okResponse(id string, result interface{}) Response {
	return Response{ID: id, Result: result}
}

// Handle dispatches one Command and returns its Response. It never
// blocks on the reconciliation lock for longer than the underlying
// Querier method does, and never panics on malformed params: invalid
// JSON is reported via ErrCodeInvalidParams instead.
func (h *Handler) Handle(ctx context.Context, cmd Command) Response {
	switch cmd.Method {
	case "observer.state":
		var p taskIDParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok := h.observer.State(p.TaskID)
		if !ok {
			return errResponse(cmd.ID, ErrCodeTaskNotFound, fmt.Sprintf("unknown task %q", p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.raw_state":
		var p taskIDParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok := h.observer.RawState(p.TaskID)
		if !ok {
			return errResponse(cmd.ID, ErrCodeTaskNotFound, fmt.Sprintf("unknown task %q", p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.task_statuses":
		var p taskIDParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok := h.observer.TaskStatuses(p.TaskID)
		if !ok {
			return errResponse(cmd.ID, ErrCodeTaskNotFound, fmt.Sprintf("unknown task %q", p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.task_processes":
		var p taskIDParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok, err := h.observer.TaskProcesses(p.TaskID)
		if err != nil {
			return errResponse(cmd.ID, ErrCodeInternalError, err.Error())
		}
		if !ok {
			return errResponse(cmd.ID, ErrCodeTaskNotFound, fmt.Sprintf("unknown task %q", p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.process":
		var p processParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok := h.observer.Process(p.TaskID, p.ProcessName, p.Run)
		if !ok {
			return errResponse(cmd.ID, ErrCodeTaskNotFound, fmt.Sprintf("unknown process %q for task %q", p.ProcessName, p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.processes":
		var p processesParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		return okResponse(cmd.ID, h.observer.Processes(p.TaskIDs))

	case "observer.logs":
		var p processParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok := h.observer.Logs(p.TaskID, p.ProcessName, p.Run)
		if !ok {
			return errResponse(cmd.ID, ErrCodeTaskNotFound, fmt.Sprintf("unknown process %q for task %q", p.ProcessName, p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.files":
		var p filesParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		v, ok := h.observer.Files(p.TaskID, p.Path)
		if !ok {
			return errResponse(cmd.ID, ErrCodeInvalidRequest, fmt.Sprintf("invalid path %q for task %q", p.Path, p.TaskID))
		}
		return okResponse(cmd.ID, v)

	case "observer.valid_path":
		var p filesParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		base, rel, ok := h.observer.ValidPath(p.TaskID, p.Path)
		return okResponse(cmd.ID, map[string]interface{}{"base": base, "relpath": rel, "valid": ok})

	case "observer.main":
		var p mainParams
		if err := unmarshalParams(cmd.Params, &p); err != nil {
			return errResponse(cmd.ID, ErrCodeInvalidParams, err.Error())
		}
		return okResponse(cmd.ID, h.observer.Main(p.Type, p.Offset, p.Num))

	case "daemon.status":
		if h.daemon == nil {
			return errResponse(cmd.ID, ErrCodeInternalError, "daemon control not available")
		}
		return okResponse(cmd.ID, h.daemon.Status())

	case "daemon.reload":
		if h.daemon == nil {
			return errResponse(cmd.ID, ErrCodeInternalError, "daemon control not available")
		}
		if err := h.daemon.Reload(); err != nil {
			return errResponse(cmd.ID, ErrCodeInternalError, err.Error())
		}
		return okResponse(cmd.ID, map[string]bool{"reloaded": true})

	case "daemon.shutdown":
		if h.daemon == nil {
			return errResponse(cmd.ID, ErrCodeInternalError, "daemon control not available")
		}
		if err := h.daemon.Shutdown(); err != nil {
			return errResponse(cmd.ID, ErrCodeInternalError, err.Error())
		}
		return okResponse(cmd.ID, map[string]bool{"shutdown": true})

	default:
		h.log.WithField("method", cmd.Method).Warn("control: unknown method")
		return errResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("unknown method %q", cmd.Method))
	}
}

func unmarshalParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
