// Package metrics implements metrics server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP server for Prometheus metrics.
type Server struct {
	addr   string
	path   string
	log    logrus.FieldLogger
	server *http.Server
}

// NewServer creates a new metrics server.
func NewServer(addr, path string, log logrus.FieldLogger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{addr: addr, path: path, log: log}
}

// Start starts the metrics HTTP server in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", s.addr).WithField("path", s.path).Info("metrics: starting server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics: server error")
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	s.log.Info("metrics: server stopped")
	return nil
}
