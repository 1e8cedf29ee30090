package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/nubilus-agent/internal/ingest"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read scrape body: %v", err)
	}
	return string(body)
}

func TestObserve_TracksStreaks(t *testing.T) {
	m := New()

	if n := m.Observe(OpMetrics, ingest.ErrServerError); n != 1 {
		t.Errorf("first failure streak = %d, want 1", n)
	}
	if n := m.Observe(OpMetrics, ingest.ErrNetworkError); n != 2 {
		t.Errorf("second failure streak = %d, want 2", n)
	}
	if n := m.Observe(OpHeartbeat, ingest.ErrServerError); n != 1 {
		t.Errorf("heartbeat streak = %d, want 1 (independent of metrics)", n)
	}
	if n := m.Observe(OpMetrics, nil); n != 0 {
		t.Errorf("streak after success = %d, want 0", n)
	}
	if got := m.ConsecutiveFailures(OpHeartbeat); got != 1 {
		t.Errorf("ConsecutiveFailures(heartbeat) = %d, want 1", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.Observe(OpMetrics, ingest.ErrServerError)
	m.Observe(OpMetrics, ingest.ErrServerError)
	m.Observe(OpHeartbeat, nil)
	m.Observe(OpHeartbeat, errors.New("plain"))
	m.SetRegistered(true)
	m.SetEndpointUp("ep-1", false)

	body := scrape(t, m)
	for _, want := range []string{
		`nubilus_agent_submissions_total{operation="metrics",result="server_error"} 2`,
		`nubilus_agent_submissions_total{operation="heartbeat",result="ok"} 1`,
		`nubilus_agent_submissions_total{operation="heartbeat",result="error"} 1`,
		`nubilus_agent_consecutive_failures{operation="metrics"} 2`,
		`nubilus_agent_registered 1`,
		`nubilus_agent_endpoint_up{endpoint_id="ep-1"} 0`,
		`nubilus_agent_build_info{commit="unknown",version="dev"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.SetRegistered(true)

	if strings.Contains(scrape(t, b), "nubilus_agent_registered 1") {
		t.Error("registries should not share state")
	}
}

func TestCount_LeavesStreakAlone(t *testing.T) {
	m := New()
	m.Observe(OpMetrics, ingest.ErrServerError)
	m.Count(OpMetrics, ingest.ErrNotRegistered)
	m.Count(OpMetrics, ingest.ErrNotRegistered)

	if got := m.ConsecutiveFailures(OpMetrics); got != 1 {
		t.Errorf("ConsecutiveFailures(metrics) = %d, want 1", got)
	}
	body := scrape(t, m)
	for _, want := range []string{
		`nubilus_agent_submissions_total{operation="metrics",result="not_registered"} 2`,
		`nubilus_agent_consecutive_failures{operation="metrics"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRegistry_GathersAgentFamilies(t *testing.T) {
	m := New()
	m.Observe(OpHeartbeat, nil)
	m.SetRegistered(true)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"nubilus_agent_submissions_total",
		"nubilus_agent_consecutive_failures",
		"nubilus_agent_registered",
		"nubilus_agent_build_info",
	} {
		if !names[want] {
			t.Errorf("Gather() missing family %q", want)
		}
	}
}
