package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// UDSServer implements a JSON-RPC server over Unix Domain Socket.
type UDSServer struct {
	socketPath string
	handler    *Handler
	log        logrus.FieldLogger
	listener   net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *Handler, log logrus.FieldLogger) *UDSServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		log:        log,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start starts the UDS server. Blocks until ctx is cancelled or an error occurs.
func (s *UDSServer) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.log.WithField("socket", s.socketPath).Info("control: uds server started")

	go s.acceptLoop(ctx)

	<-ctx.Done()
	s.log.WithError(ctx.Err()).Info("control: uds server stopping")

	return s.Stop()
}

func (s *UDSServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()

			if stopped {
				return
			}

			s.log.WithError(err).Error("control: failed to accept connection")
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *UDSServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Error("control: failed to parse request")
			errResp := JSONRPCResponse{
				JSONRPC: "2.0",
				Error: &ErrorInfo{
					Code:    ErrCodeParseError,
					Message: fmt.Sprintf("parse error: %v", err),
				},
			}
			encoder.Encode(errResp)
			continue
		}

		cmd := Command{
			Method: req.Method,
			Params: req.Params,
			ID:     fmt.Sprintf("%v", req.ID),
		}

		resp := s.handler.Handle(ctx, cmd)

		jsonrpcResp := JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  resp.Result,
			Error:   resp.Error,
		}

		if err := encoder.Encode(jsonrpcResp); err != nil {
			s.log.WithError(err).Error("control: failed to send response")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.WithError(err).Error("control: connection error")
	}
}

// Stop stops the UDS server. Idempotent.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	s.log.Info("control: uds server stopped")
	return nil
}
