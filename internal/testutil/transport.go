package testutil

import (
	"context"
	"sync"

	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// MockTransport is a thread-safe in-memory ingest client. Each hook receives
// the 1-based call number for its operation; a nil hook succeeds.
type MockTransport struct {
	RegisterFunc    func(call int) (string, error)
	MetricsFunc     func(call int) error
	HeartbeatFunc   func(call int) error
	HealthCheckFunc func(call int) error

	mu           sync.Mutex
	registers    int
	heartbeats   int
	snapshots    []models.MetricsSnapshot
	healthChecks []models.HealthCheckPayload
}

// Register records the call and defers to RegisterFunc.
func (m *MockTransport) Register(_ context.Context, _ *models.RegisterRequest) (string, error) {
	m.mu.Lock()
	m.registers++
	n := m.registers
	m.mu.Unlock()
	if m.RegisterFunc == nil {
		return "server-1", nil
	}
	return m.RegisterFunc(n)
}

// SubmitMetrics records the snapshot and defers to MetricsFunc.
func (m *MockTransport) SubmitMetrics(_ context.Context, s *models.MetricsSnapshot) error {
	m.mu.Lock()
	m.snapshots = append(m.snapshots, *s)
	n := len(m.snapshots)
	m.mu.Unlock()
	if m.MetricsFunc == nil {
		return nil
	}
	return m.MetricsFunc(n)
}

// Heartbeat records the call and defers to HeartbeatFunc.
func (m *MockTransport) Heartbeat(_ context.Context) error {
	m.mu.Lock()
	m.heartbeats++
	n := m.heartbeats
	m.mu.Unlock()
	if m.HeartbeatFunc == nil {
		return nil
	}
	return m.HeartbeatFunc(n)
}

// SubmitHealthCheck records the payload and defers to HealthCheckFunc.
func (m *MockTransport) SubmitHealthCheck(_ context.Context, p *models.HealthCheckPayload) error {
	m.mu.Lock()
	m.healthChecks = append(m.healthChecks, *p)
	n := len(m.healthChecks)
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(n)
}

// Registers returns how many register calls were made.
func (m *MockTransport) Registers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registers
}

// Heartbeats returns how many heartbeats were sent.
func (m *MockTransport) Heartbeats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}

// Snapshots returns a copy of all submitted snapshots.
func (m *MockTransport) Snapshots() []models.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MetricsSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// HealthChecks returns a copy of all submitted health check payloads.
func (m *MockTransport) HealthChecks() []models.HealthCheckPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.HealthCheckPayload, len(m.healthChecks))
	copy(out, m.healthChecks)
	return out
}
