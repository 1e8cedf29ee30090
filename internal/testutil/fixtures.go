package testutil

import (
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// NewRegisterRequest returns a RegisterRequest with sensible defaults.
// Override individual fields with options.
func NewRegisterRequest(opts ...func(*models.RegisterRequest)) *models.RegisterRequest {
	ip := "192.168.1.100"
	r := &models.RegisterRequest{
		Name:         "test-agent",
		Hostname:     "test-host",
		IPAddress:    &ip,
		OSType:       "linux",
		OSVersion:    "6.1.0",
		AgentVersion: "dev",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithName sets the agent name.
func WithName(name string) func(*models.RegisterRequest) {
	return func(r *models.RegisterRequest) { r.Name = name }
}

// WithHostname sets the hostname.
func WithHostname(name string) func(*models.RegisterRequest) {
	return func(r *models.RegisterRequest) { r.Hostname = name }
}

// NewSnapshot returns a plausible MetricsSnapshot for a 4-core host.
func NewSnapshot() *models.MetricsSnapshot {
	load := 0.5
	return &models.MetricsSnapshot{
		CPUUsage:        12.5,
		CPUCount:        4,
		LoadAverage1m:   &load,
		LoadAverage5m:   &load,
		LoadAverage15m:  &load,
		MemoryUsage:     50,
		MemoryTotal:     8 << 30,
		MemoryUsed:      4 << 30,
		MemoryAvailable: 4 << 30,
		DiskUsage:       25,
		DiskTotal:       100 << 30,
		DiskUsed:        25 << 30,
		DiskReadBytes:   1 << 20,
		DiskWriteBytes:  2 << 20,
		NetworkIn:       3 << 20,
		NetworkOut:      4 << 20,
	}
}
