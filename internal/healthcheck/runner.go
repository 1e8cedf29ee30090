package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// Submitter delivers one probe outcome to the backend.
type Submitter interface {
	SubmitHealthCheck(ctx context.Context, payload *models.HealthCheckPayload) error
}

// Runner probes every configured endpoint once per round. Probes inside a
// round are paced by a token bucket so large endpoint lists do not burst.
type Runner struct {
	endpoints   []config.EndpointConfig
	checkers    map[string]Checker
	submitter   Submitter
	limiter     *rate.Limiter
	checkedFrom string
	onResult    func(payload *models.HealthCheckPayload, submitErr error)
	logger      *zap.Logger
}

// RoundStats summarizes one round.
type RoundStats struct {
	Checked   int
	Up        int
	Submitted int
}

// NewRunner builds a Runner with the default HTTP and ICMP checkers.
// ratePerSecond bounds how many probes start per second.
func NewRunner(endpoints []config.EndpointConfig, submitter Submitter, ratePerSecond float64, checkedFrom string, logger *zap.Logger) *Runner {
	return &Runner{
		endpoints: endpoints,
		checkers: map[string]Checker{
			config.CheckTypeHTTP: NewHTTPChecker(DefaultTimeout),
			config.CheckTypeICMP: NewICMPChecker(DefaultTimeout, 3),
		},
		submitter:   submitter,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		checkedFrom: checkedFrom,
		logger:      logger,
	}
}

// SetChecker overrides the checker used for a check type.
func (r *Runner) SetChecker(checkType string, c Checker) {
	r.checkers[checkType] = c
}

// OnResult registers fn to be called after every submit attempt.
func (r *Runner) OnResult(fn func(payload *models.HealthCheckPayload, submitErr error)) {
	r.onResult = fn
}

// RunOnce probes each endpoint in order and submits the results. Individual
// probe or submit failures are logged; only context cancellation stops the
// round early.
func (r *Runner) RunOnce(ctx context.Context) (RoundStats, error) {
	var stats RoundStats
	for _, ep := range r.endpoints {
		if err := r.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		payload, err := r.probe(ctx, ep)
		if err != nil {
			r.logger.Warn("health check failed to run",
				zap.String("endpoint_id", ep.ID),
				zap.String("target", ep.Target),
				zap.Error(err),
			)
			continue
		}
		stats.Checked++
		if payload.IsUp {
			stats.Up++
		}

		err = r.submitter.SubmitHealthCheck(ctx, payload)
		if r.onResult != nil && ctx.Err() == nil {
			r.onResult(payload, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			r.logger.Warn("failed to submit health check",
				zap.String("endpoint_id", ep.ID),
				zap.Error(err),
			)
			continue
		}
		stats.Submitted++
	}
	return stats, nil
}

func (r *Runner) probe(ctx context.Context, ep config.EndpointConfig) (*models.HealthCheckPayload, error) {
	checker, ok := r.checkers[ep.Type]
	if !ok {
		return nil, fmt.Errorf("no checker for type %q", ep.Type)
	}
	result, err := checker.Check(ctx, ep.Target)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("checker returned no result")
	}
	return NewPayload(ep.ID, r.checkedFrom, result), nil
}

// NewPayload converts a probe result into the ingest wire model. Response
// time is reported in milliseconds.
func NewPayload(endpointID, checkedFrom string, result *Result) *models.HealthCheckPayload {
	p := &models.HealthCheckPayload{
		EndpointID:   endpointID,
		StatusCode:   result.StatusCode,
		ResponseTime: float64(result.ResponseTime) / float64(time.Millisecond),
		IsUp:         result.IsUp,
		CheckedFrom:  checkedFrom,
	}
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		p.ErrorMessage = &msg
	}
	return p
}
