// Package registration drives the startup handshake with the ingest API:
// retry with exponential backoff until the server accepts the agent, the
// credentials are rejected, or the attempt budget runs out.
package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/internal/backoff"
	"github.com/HerbHall/nubilus-agent/internal/ingest"
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// MaxAttempts is the number of failed register calls tolerated before the
// sequencer gives up.
const MaxAttempts = 10

// State is the sequencer lifecycle position.
type State int

const (
	StateRegistering State = iota
	StateRegistered
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registrar performs a single registration call.
type Registrar interface {
	Register(ctx context.Context, req *models.RegisterRequest) (string, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// AbortError is returned when registration ends without an identity.
type AbortError struct {
	Attempts int
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("registration aborted after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Sequencer runs the registration state machine. A Sequencer is single use.
type Sequencer struct {
	registrar   Registrar
	logger      *zap.Logger
	sleep       SleepFunc
	maxAttempts int

	mu       sync.Mutex
	state    State
	serverID string
	attempts int
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *Sequencer) { s.sleep = fn }
}

// WithMaxAttempts overrides MaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a Sequencer that registers through r.
func New(r Registrar, logger *zap.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		registrar:   r,
		logger:      logger,
		sleep:       Sleep,
		maxAttempts: MaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run registers req and returns the server ID. Unauthorized aborts at once.
// Any other failure sleeps backoff.Delay(attempt) and retries until
// maxAttempts failures have accumulated; the last error is then wrapped in
// an *AbortError. Cancelling ctx aborts with the context error.
func (s *Sequencer) Run(ctx context.Context, req *models.RegisterRequest) (string, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", s.abort(failures, err)
		}

		s.logger.Info("registering with server", zap.Int("attempt", failures+1))
		serverID, err := s.registrar.Register(ctx, req)
		if err == nil {
			s.mu.Lock()
			s.state = StateRegistered
			s.serverID = serverID
			s.attempts = failures + 1
			s.mu.Unlock()
			s.logger.Info("registered", zap.String("server_id", serverID), zap.Int("attempts", failures+1))
			return serverID, nil
		}

		failures++
		if errors.Is(err, ingest.ErrUnauthorized) {
			s.logger.Error("registration rejected, check the API key", zap.Error(err))
			return "", s.abort(failures, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", s.abort(failures, ctxErr)
		}
		if failures >= s.maxAttempts {
			s.logger.Error("registration failed, giving up",
				zap.Int("attempts", failures),
				zap.Error(err),
			)
			return "", s.abort(failures, err)
		}

		delay := backoff.Delay(failures)
		s.logger.Warn("registration attempt failed",
			zap.Int("attempt", failures),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return "", s.abort(failures, err)
		}
	}
}

func (s *Sequencer) abort(attempts int, err error) error {
	s.mu.Lock()
	s.state = StateAborted
	s.attempts = attempts
	s.mu.Unlock()
	return &AbortError{Attempts: attempts, Err: err}
}

// State returns the current lifecycle position.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerID returns the identity assigned on success, or "".
func (s *Sequencer) ServerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverID
}

// Attempts returns how many register calls were made.
func (s *Sequencer) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
