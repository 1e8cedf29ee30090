package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestServer(state string) *Server {
	status := func() Status {
		return Status{
			State:               state,
			ServerID:            "srv-1",
			StartedAt:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Uptime:              "1m0s",
			ConsecutiveFailures: map[string]int{"metrics": 2},
		}
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "nubilus_agent_registered 1\n")
	})
	return New("127.0.0.1:0", status, metrics, zap.NewNop())
}

func TestHealth(t *testing.T) {
	tests := []struct {
		state    string
		wantCode int
	}{
		{"registered", http.StatusOK},
		{"registering", http.StatusServiceUnavailable},
		{"aborted", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestServer(tt.state).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var got Status
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if got.State != tt.state || got.ConsecutiveFailures["metrics"] != 2 {
				t.Errorf("body = %+v", got)
			}
			if rec.Header().Get("X-Nubilus-Agent-Version") == "" {
				t.Error("missing version header")
			}
		})
	}
}

func TestVersionAndMetrics(t *testing.T) {
	h := newTestServer("registered").Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var v map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode /version: %v", err)
	}
	if v["version"] != "dev" {
		t.Errorf("version = %q, want dev", v["version"])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "nubilus_agent_registered 1") {
		t.Errorf("/metrics body = %q", rec.Body.String())
	}
}

func TestUnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer("registered").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsOmittedWhenNil(t *testing.T) {
	s := New("127.0.0.1:0", func() Status { return Status{} }, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := newTestServer("registered")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serveListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveListener() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	s := New(ln.Addr().String(), func() Status { return Status{} }, nil, zap.NewNop())
	err = s.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Errorf("Serve() error = %v, want listen error", err)
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Errorf("Serve() error = %v, want *net.OpError", err)
	}
}
