// Package agent runs the reporting lifecycle: register once, then drive the
// metrics, heartbeat and health check loops until the context ends or the
// server rejects the credentials.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/nubilus-agent/internal/collector"
	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/internal/healthcheck"
	"github.com/HerbHall/nubilus-agent/internal/ingest"
	"github.com/HerbHall/nubilus-agent/internal/registration"
	"github.com/HerbHall/nubilus-agent/internal/server"
	"github.com/HerbHall/nubilus-agent/internal/state"
	"github.com/HerbHall/nubilus-agent/internal/telemetry"
	"github.com/HerbHall/nubilus-agent/internal/version"
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// Transport is the subset of the ingest client the agent drives.
type Transport interface {
	registration.Registrar
	healthcheck.Submitter
	SubmitMetrics(ctx context.Context, snapshot *models.MetricsSnapshot) error
	Heartbeat(ctx context.Context) error
}

// RegistrationRecorder persists accepted registrations.
type RegistrationRecorder interface {
	RecordRegistration(ctx context.Context, r state.Registration) error
}

// Compile-time guards.
var (
	_ Transport            = (*ingest.Client)(nil)
	_ RegistrationRecorder = (*state.Store)(nil)
)

// Agent is the Nubilus monitoring agent.
type Agent struct {
	config    *config.Config
	transport Transport
	collector collector.Collector
	logger    *zap.Logger

	host     *collector.HostInfo
	recorder RegistrationRecorder
	metrics  *telemetry.Metrics
	seq      *registration.Sequencer
	seqOpts  []registration.Option
	now      func() time.Time

	metricsInterval   time.Duration
	heartbeatInterval time.Duration
	healthInterval    time.Duration

	startedAt time.Time
}

// Option customizes an Agent.
type Option func(*Agent)

// WithHost skips host detection and registers with info.
func WithHost(info collector.HostInfo) Option {
	return func(a *Agent) { a.host = &info }
}

// WithRecorder stores each accepted registration.
func WithRecorder(r RegistrationRecorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithMetrics shares an existing telemetry set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithRegistrationOptions passes options to the registration sequencer.
func WithRegistrationOptions(opts ...registration.Option) Option {
	return func(a *Agent) { a.seqOpts = append(a.seqOpts, opts...) }
}

// WithIntervals overrides the configured loop periods. Zero keeps the
// configured value.
func WithIntervals(metrics, heartbeat, health time.Duration) Option {
	return func(a *Agent) {
		if metrics > 0 {
			a.metricsInterval = metrics
		}
		if heartbeat > 0 {
			a.heartbeatInterval = heartbeat
		}
		if health > 0 {
			a.healthInterval = health
		}
	}
}

// WithClock replaces time.Now for registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an agent. cfg must already be validated.
func New(cfg *config.Config, transport Transport, coll collector.Collector, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		config:            cfg,
		transport:         transport,
		collector:         coll,
		logger:            logger,
		now:               time.Now,
		metricsInterval:   cfg.MetricsInterval(),
		heartbeatInterval: cfg.HeartbeatInterval(),
		healthInterval:    cfg.HealthCheckInterval(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = telemetry.New()
	}
	a.seq = registration.New(transport, logger.Named("registration"), a.seqOpts...)
	a.startedAt = a.now()
	return a
}

// Metrics returns the agent's telemetry.
func (a *Agent) Metrics() *telemetry.Metrics {
	return a.metrics
}

// Run registers and then blocks running the loops. It returns nil when ctx
// is cancelled and an error when registration fails or the server rejects
// the API key during steady state.
func (a *Agent) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	a.logger.Info("nubilus agent starting",
		zap.String("version", version.Short()),
		zap.String("api_url", a.config.Server.APIURL),
		zap.String("name", a.config.Agent.Name),
		zap.String("platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
		zap.Duration("metrics_interval", a.metricsInterval),
		zap.Duration("heartbeat_interval", a.heartbeatInterval),
	)

	if addr := a.config.Status.ListenAddr; addr != "" {
		srv := server.New(addr, a.Status, a.metrics.Handler(), a.logger.Named("status"))
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				a.logger.Error("status server stopped", zap.Error(err))
			}
			return nil
		})
	}

	serverID, err := a.register(gctx)
	if err != nil {
		cancel()
		_ = g.Wait()
		if ctx.Err() != nil {
			a.logger.Info("shutdown requested during registration")
			return nil
		}
		return fmt.Errorf("register: %w", err)
	}
	a.logger.Info("agent running", zap.String("server_id", serverID))

	g.Go(func() error {
		return runEvery(gctx, a.metricsInterval, a.metricsTick)
	})
	g.Go(func() error {
		return runEvery(gctx, a.heartbeatInterval, a.heartbeatTick)
	})
	if a.config.HealthChecksEnabled() {
		runner := a.newHealthRunner()
		g.Go(func() error {
			return runEvery(gctx, a.healthInterval, func(ctx context.Context) error {
				stats, err := runner.RunOnce(ctx)
				if err == nil {
					a.logger.Debug("health check round complete",
						zap.Int("checked", stats.Checked),
						zap.Int("up", stats.Up),
						zap.Int("submitted", stats.Submitted),
					)
				}
				return nil
			})
		})
	}

	err = g.Wait()
	a.logger.Info("nubilus agent stopped")
	return err
}

// register runs the sequencer and records the result.
func (a *Agent) register(ctx context.Context) (string, error) {
	host := a.hostInfo(ctx)
	req := &models.RegisterRequest{
		Name:         a.config.Agent.Name,
		Hostname:     host.Hostname,
		OSType:       host.OSType,
		OSVersion:    host.OSVersion,
		AgentVersion: version.Version,
	}

	serverID, err := a.seq.Run(ctx, req)
	a.metrics.Observe(telemetry.OpRegister, err)
	if err != nil {
		return "", err
	}
	a.metrics.SetRegistered(true)

	if a.recorder != nil {
		rec := state.Registration{
			ServerID:     serverID,
			APIURL:       a.config.Server.APIURL,
			AgentName:    a.config.Agent.Name,
			AgentVersion: version.Version,
			RegisteredAt: a.now(),
		}
		if err := a.recorder.RecordRegistration(ctx, rec); err != nil {
			a.logger.Warn("failed to record registration", zap.Error(err))
		}
	}
	return serverID, nil
}

func (a *Agent) hostInfo(ctx context.Context) collector.HostInfo {
	if a.host != nil {
		return *a.host
	}
	return collector.DetectHost(ctx, a.logger)
}

// metricsTick collects and submits one snapshot. Only Unauthorized ends the
// loop. A missing registration is logged without re-registering and does not
// count toward the failure streak.
func (a *Agent) metricsTick(ctx context.Context) error {
	snapshot, err := a.collector.Collect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("failed to collect metrics", zap.Error(err))
		}
		return nil
	}

	err = a.transport.SubmitMetrics(ctx, snapshot)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	switch {
	case err == nil:
		a.metrics.Observe(telemetry.OpMetrics, nil)
		a.logger.Debug("metrics submitted",
			zap.Float64("cpu_usage", snapshot.CPUUsage),
			zap.Float64("memory_usage", snapshot.MemoryUsage),
		)
	case errors.Is(err, ingest.ErrUnauthorized):
		a.metrics.Count(telemetry.OpMetrics, err)
		a.logger.Error("API key rejected, stopping agent", zap.Error(err))
		return fmt.Errorf("submit metrics: %w", err)
	case errors.Is(err, ingest.ErrNotRegistered):
		a.metrics.Count(telemetry.OpMetrics, err)
		a.logger.Warn("server reports agent not registered", zap.Error(err))
	default:
		failures := a.metrics.Observe(telemetry.OpMetrics, err)
		a.logger.Warn("failed to submit metrics",
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
	}
	return nil
}

// heartbeatTick never fails the loop.
func (a *Agent) heartbeatTick(ctx context.Context) error {
	err := a.transport.Heartbeat(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	failures := a.metrics.Observe(telemetry.OpHeartbeat, err)
	if err != nil {
		a.logger.Warn("heartbeat failed",
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
		return nil
	}
	a.logger.Debug("heartbeat sent")
	return nil
}

func (a *Agent) newHealthRunner() *healthcheck.Runner {
	r := healthcheck.NewRunner(
		a.config.Features.Endpoints,
		a.transport,
		a.config.Features.HealthCheckRate,
		a.config.Agent.Name,
		a.logger.Named("healthcheck"),
	)
	r.OnResult(func(p *models.HealthCheckPayload, err error) {
		a.metrics.SetEndpointUp(p.EndpointID, p.IsUp)
		a.metrics.Observe(telemetry.OpHealthCheck, err)
	})
	return r
}

// Status reports the agent state for the local status server.
func (a *Agent) Status() server.Status {
	return server.Status{
		State:     a.seq.State().String(),
		ServerID:  a.seq.ServerID(),
		StartedAt: a.startedAt,
		Uptime:    a.now().Sub(a.startedAt).Round(time.Second).String(),
		ConsecutiveFailures: map[string]int{
			telemetry.OpMetrics:     a.metrics.ConsecutiveFailures(telemetry.OpMetrics),
			telemetry.OpHeartbeat:   a.metrics.ConsecutiveFailures(telemetry.OpHeartbeat),
			telemetry.OpHealthCheck: a.metrics.ConsecutiveFailures(telemetry.OpHealthCheck),
		},
	}
}

// runEvery calls fn immediately and then on every tick until ctx ends or fn
// returns an error. Ticks missed while fn runs are dropped.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := fn(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
