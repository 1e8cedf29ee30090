package healthcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/internal/ingest"
	"github.com/HerbHall/nubilus-agent/internal/testutil"
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

func TestNewPayload(t *testing.T) {
	status := 200
	tests := []struct {
		name    string
		result  *Result
		wantUp  bool
		wantMs  float64
		wantErr bool
	}{
		{
			name:   "up",
			result: &Result{IsUp: true, StatusCode: &status, ResponseTime: 1500 * time.Microsecond},
			wantUp: true,
			wantMs: 1.5,
		},
		{
			name:    "down",
			result:  &Result{ErrorMessage: "timeout after 10s", ResponseTime: 10 * time.Second},
			wantMs:  10000,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPayload("ep-1", "web-01", tt.result)
			if p.EndpointID != "ep-1" || p.CheckedFrom != "web-01" {
				t.Errorf("payload = %+v", p)
			}
			if p.IsUp != tt.wantUp {
				t.Errorf("IsUp = %v, want %v", p.IsUp, tt.wantUp)
			}
			if p.ResponseTime != tt.wantMs {
				t.Errorf("ResponseTime = %v, want %v", p.ResponseTime, tt.wantMs)
			}
			if (p.ErrorMessage != nil) != tt.wantErr {
				t.Errorf("ErrorMessage = %v, wantErr %v", p.ErrorMessage, tt.wantErr)
			}
		})
	}
}

func testEndpoints() []config.EndpointConfig {
	return []config.EndpointConfig{
		{ID: "ep-http", Target: "https://example.com", Type: config.CheckTypeHTTP},
		{ID: "ep-icmp", Target: "192.0.2.1", Type: config.CheckTypeICMP},
		{ID: "ep-bogus", Target: "x", Type: "tcp"},
	}
}

func TestRunner_RunOnce(t *testing.T) {
	transport := &testutil.MockTransport{}
	r := NewRunner(testEndpoints(), transport, 1000, "web-01", zap.NewNop())

	status := 200
	httpChecker := newMockChecker(&Result{IsUp: true, StatusCode: &status}, nil)
	icmpChecker := newMockChecker(&Result{ErrorMessage: "all packets lost"}, nil)
	r.SetChecker(config.CheckTypeHTTP, httpChecker)
	r.SetChecker(config.CheckTypeICMP, icmpChecker)

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if stats != (RoundStats{Checked: 2, Up: 1, Submitted: 2}) {
		t.Errorf("stats = %+v", stats)
	}

	got := transport.HealthChecks()
	if len(got) != 2 {
		t.Fatalf("submitted %d payloads, want 2", len(got))
	}
	if got[0].EndpointID != "ep-http" || !got[0].IsUp {
		t.Errorf("first payload = %+v", got[0])
	}
	if got[1].EndpointID != "ep-icmp" || got[1].IsUp || got[1].ErrorMessage == nil {
		t.Errorf("second payload = %+v", got[1])
	}
	if len(httpChecker.targets) != 1 || httpChecker.targets[0] != "https://example.com" {
		t.Errorf("http targets = %v", httpChecker.targets)
	}
}

func TestRunner_SubmitErrorsAreNotFatal(t *testing.T) {
	transport := &testutil.MockTransport{
		HealthCheckFunc: func(call int) error {
			if call == 1 {
				return ingest.ErrServerError
			}
			return nil
		},
	}
	endpoints := testEndpoints()[:2]
	r := NewRunner(endpoints, transport, 1000, "web-01", zap.NewNop())
	r.SetChecker(config.CheckTypeHTTP, newMockChecker(&Result{IsUp: true}, nil))
	r.SetChecker(config.CheckTypeICMP, newMockChecker(&Result{IsUp: true}, nil))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if stats.Checked != 2 || stats.Submitted != 1 {
		t.Errorf("stats = %+v, want 2 checked, 1 submitted", stats)
	}
}

func TestRunner_CheckerErrorSkipsEndpoint(t *testing.T) {
	transport := &testutil.MockTransport{}
	r := NewRunner(testEndpoints()[:2], transport, 1000, "web-01", zap.NewNop())
	r.SetChecker(config.CheckTypeHTTP, newMockChecker(nil, errors.New("bad url")))
	r.SetChecker(config.CheckTypeICMP, newMockChecker(&Result{IsUp: true}, nil))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if stats.Checked != 1 || len(transport.HealthChecks()) != 1 {
		t.Errorf("stats = %+v, submitted = %d", stats, len(transport.HealthChecks()))
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	transport := &testutil.MockTransport{}
	r := NewRunner(testEndpoints(), transport, 1000, "web-01", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce() error = %v, want context.Canceled", err)
	}
	if len(transport.HealthChecks()) != 0 {
		t.Error("no payloads should be submitted after cancellation")
	}
}

func TestRunner_PacesProbes(t *testing.T) {
	transport := &testutil.MockTransport{}
	endpoints := []config.EndpointConfig{
		{ID: "a", Target: "a", Type: config.CheckTypeHTTP},
		{ID: "b", Target: "b", Type: config.CheckTypeHTTP},
		{ID: "c", Target: "c", Type: config.CheckTypeHTTP},
	}
	r := NewRunner(endpoints, transport, 20, "web-01", zap.NewNop())
	r.SetChecker(config.CheckTypeHTTP, newMockChecker(&Result{IsUp: true}, nil))

	start := time.Now()
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 probes at 20/s took %v, want >= 80ms", elapsed)
	}
}

func TestRunner_OnResult(t *testing.T) {
	transport := &testutil.MockTransport{
		HealthCheckFunc: func(call int) error {
			if call == 2 {
				return ingest.ErrRateLimited
			}
			return nil
		},
	}
	r := NewRunner(testEndpoints()[:2], transport, 1000, "web-01", zap.NewNop())
	r.SetChecker(config.CheckTypeHTTP, newMockChecker(&Result{IsUp: true}, nil))
	r.SetChecker(config.CheckTypeICMP, newMockChecker(&Result{}, nil))

	type seen struct {
		id  string
		up  bool
		err error
	}
	var got []seen
	r.OnResult(func(p *models.HealthCheckPayload, err error) {
		got = append(got, seen{p.EndpointID, p.IsUp, err})
	})

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("OnResult calls = %d, want 2", len(got))
	}
	if got[0].id != "ep-http" || !got[0].up || got[0].err != nil {
		t.Errorf("first result = %+v", got[0])
	}
	if got[1].id != "ep-icmp" || got[1].up || !errors.Is(got[1].err, ingest.ErrRateLimited) {
		t.Errorf("second result = %+v", got[1])
	}
}
