// Package telemetry exposes the agent's own health as Prometheus metrics:
// submission outcomes, consecutive failure streaks and registration state.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HerbHall/nubilus-agent/internal/ingest"
	"github.com/HerbHall/nubilus-agent/internal/version"
)

const namespace = "nubilus_agent"

// Operation labels.
const (
	OpRegister    = "register"
	OpMetrics     = "metrics"
	OpHeartbeat   = "heartbeat"
	OpHealthCheck = "health_check"
)

// ResultOK labels a successful submission.
const ResultOK = "ok"

// Metrics holds every collector on a private registry so tests and multiple
// agents in one process never collide on the global default.
type Metrics struct {
	registry *prometheus.Registry

	submissions         *prometheus.CounterVec
	consecutiveFailures *prometheus.GaugeVec
	lastSuccess         *prometheus.GaugeVec
	registered          prometheus.Gauge
	endpointUp          *prometheus.GaugeVec

	mu      sync.Mutex
	streaks map[string]int
}

// New creates and registers the agent metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Ingest API calls by operation and result.",
		}, []string{"operation", "result"}),
		consecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Current run of failed calls per operation; reset on success.",
		}, []string{"operation"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful call per operation.",
		}, []string{"operation"}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered",
			Help:      "1 once the agent holds a server identity.",
		}),
		endpointUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_up",
			Help:      "Last probe outcome per endpoint (1 up, 0 down).",
		}, []string{"endpoint_id"}),
		streaks: make(map[string]int),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Agent build metadata.",
		ConstLabels: prometheus.Labels{"version": version.Version, "commit": version.GitCommit},
	})
	buildInfo.Set(1)

	m.registry.MustRegister(
		m.submissions,
		m.consecutiveFailures,
		m.lastSuccess,
		m.registered,
		m.endpointUp,
		buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe records the outcome of one call and returns the updated
// consecutive failure count for op.
func (m *Metrics) Observe(op string, err error) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count(op, err)
	if err == nil {
		m.streaks[op] = 0
	} else {
		m.streaks[op]++
	}
	m.consecutiveFailures.WithLabelValues(op).Set(float64(m.streaks[op]))
	return m.streaks[op]
}

// Count records the outcome of one call without touching the failure
// streak for op.
func (m *Metrics) Count(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count(op, err)
}

func (m *Metrics) count(op string, err error) {
	if err == nil {
		m.submissions.WithLabelValues(op, ResultOK).Inc()
		m.lastSuccess.WithLabelValues(op).Set(float64(time.Now().Unix()))
		return
	}
	m.submissions.WithLabelValues(op, resultLabel(err)).Inc()
}

// ConsecutiveFailures returns the current failure streak for op.
func (m *Metrics) ConsecutiveFailures(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaks[op]
}

// SetRegistered flips the registration gauge.
func (m *Metrics) SetRegistered(ok bool) {
	if ok {
		m.registered.Set(1)
		return
	}
	m.registered.Set(0)
}

// SetEndpointUp records the last probe outcome for an endpoint.
func (m *Metrics) SetEndpointUp(endpointID string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.endpointUp.WithLabelValues(endpointID).Set(v)
}

func resultLabel(err error) string {
	if k := ingest.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}
