// Package server is the agent's optional local status endpoint. It serves
// liveness, build metadata and Prometheus metrics to the host it runs on.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/internal/version"
)

// ShutdownTimeout bounds graceful shutdown in Serve.
const ShutdownTimeout = 5 * time.Second

// Status is the agent state reported on /healthz.
type Status struct {
	State               string         `json:"state"`
	ServerID            string         `json:"server_id,omitempty"`
	StartedAt           time.Time      `json:"started_at"`
	Uptime              string         `json:"uptime"`
	ConsecutiveFailures map[string]int `json:"consecutive_failures"`
}

// StatusFunc returns a point-in-time Status.
type StatusFunc func() Status

// Server is the local status HTTP server.
type Server struct {
	httpServer *http.Server
	status     StatusFunc
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server on addr. metrics may be nil to omit /metrics.
func New(addr string, status StatusFunc, metrics http.Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		status: status,
		logger: logger,
		mux:    mux,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("/", s.handleNotFound)

	return s
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() {
		errc <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down status server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

// handleHealth reports 200 once registered and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	code := http.StatusOK
	if st.State != "registered" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Map())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFound(w, "no such endpoint", r.URL.Path)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Nubilus-Agent-Version", version.Short())
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
