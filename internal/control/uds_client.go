package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for the response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := uuid.NewString()
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	return &Response{
		ID:     respIDStr,
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}, nil
}

// State calls observer.state for task_id.
func (c *UDSClient) State(ctx context.Context, taskID string) (*Response, error) {
	return c.Call(ctx, "observer.state", map[string]string{"task_id": taskID})
}

// RawState calls observer.raw_state for task_id.
func (c *UDSClient) RawState(ctx context.Context, taskID string) (*Response, error) {
	return c.Call(ctx, "observer.raw_state", map[string]string{"task_id": taskID})
}

// TaskStatuses calls observer.task_statuses for task_id.
func (c *UDSClient) TaskStatuses(ctx context.Context, taskID string) (*Response, error) {
	return c.Call(ctx, "observer.task_statuses", map[string]string{"task_id": taskID})
}

// TaskProcesses calls observer.task_processes for task_id.
func (c *UDSClient) TaskProcesses(ctx context.Context, taskID string) (*Response, error) {
	return c.Call(ctx, "observer.task_processes", map[string]string{"task_id": taskID})
}

// Process calls observer.process for one process run. run == nil means
// "most recent".
func (c *UDSClient) Process(ctx context.Context, taskID, process string, run *int) (*Response, error) {
	return c.Call(ctx, "observer.process", processParams{TaskID: taskID, ProcessName: process, Run: run})
}

// Processes calls observer.processes across a batch of task ids.
func (c *UDSClient) Processes(ctx context.Context, taskIDs []string) (*Response, error) {
	return c.Call(ctx, "observer.processes", processesParams{TaskIDs: taskIDs})
}

// Logs calls observer.logs for one process run.
func (c *UDSClient) Logs(ctx context.Context, taskID, process string, run *int) (*Response, error) {
	return c.Call(ctx, "observer.logs", processParams{TaskID: taskID, ProcessName: process, Run: run})
}

// Files calls observer.files for path within task_id's sandbox.
func (c *UDSClient) Files(ctx context.Context, taskID, path string) (*Response, error) {
	return c.Call(ctx, "observer.files", filesParams{TaskID: taskID, Path: path})
}

// ValidPath calls observer.valid_path.
func (c *UDSClient) ValidPath(ctx context.Context, taskID, path string) (*Response, error) {
	return c.Call(ctx, "observer.valid_path", filesParams{TaskID: taskID, Path: path})
}

// Main calls observer.main with the given pagination window.
func (c *UDSClient) Main(ctx context.Context, taskType string, offset, num int) (*Response, error) {
	return c.Call(ctx, "observer.main", mainParams{Type: taskType, Offset: offset, Num: num})
}

// Status calls daemon.status.
func (c *UDSClient) Status(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon.status", nil)
}

// Reload calls daemon.reload.
func (c *UDSClient) Reload(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon.reload", nil)
}

// Shutdown calls daemon.shutdown.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon.shutdown", nil)
}

// Ping checks whether the daemon is alive via daemon.status.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}
