package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/internal/backoff"
	"github.com/HerbHall/nubilus-agent/internal/ingest"
	"github.com/HerbHall/nubilus-agent/internal/testutil"
)

func networkErr() error {
	return &ingest.Error{Kind: ingest.KindNetworkError, Detail: "connection refused"}
}

func TestRun_SucceedsAfterNineFailures(t *testing.T) {
	transport := &testutil.MockTransport{
		RegisterFunc: func(call int) (string, error) {
			if call < 10 {
				return "", networkErr()
			}
			return "srv-42", nil
		},
	}
	sleeper := testutil.NewSleeper(nil)
	seq := New(transport, zap.NewNop(), WithSleep(sleeper.Sleep))

	id, err := seq.Run(context.Background(), testutil.NewRegisterRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if id != "srv-42" {
		t.Errorf("server id = %q, want srv-42", id)
	}
	if transport.Registers() != 10 {
		t.Errorf("register calls = %d, want 10", transport.Registers())
	}

	var want time.Duration
	for attempt := 1; attempt <= 9; attempt++ {
		want += backoff.Delay(attempt)
	}
	if got := sleeper.Total(); got != want {
		t.Errorf("total sleep = %v, want %v", got, want)
	}
	if got := sleeper.Sleeps(); len(got) != 9 || got[0] != 2*time.Second || got[8] != 300*time.Second {
		t.Errorf("sleeps = %v", got)
	}
	if seq.State() != StateRegistered || seq.ServerID() != "srv-42" || seq.Attempts() != 10 {
		t.Errorf("state = %s, id = %q, attempts = %d", seq.State(), seq.ServerID(), seq.Attempts())
	}
}

func TestRun_UnauthorizedAbortsImmediately(t *testing.T) {
	transport := &testutil.MockTransport{
		RegisterFunc: func(int) (string, error) {
			return "", ingest.ErrUnauthorized
		},
	}
	sleeper := testutil.NewSleeper(nil)
	seq := New(transport, zap.NewNop(), WithSleep(sleeper.Sleep))

	_, err := seq.Run(context.Background(), testutil.NewRegisterRequest())
	if !errors.Is(err, ingest.ErrUnauthorized) {
		t.Fatalf("Run() error = %v, want unauthorized", err)
	}
	if transport.Registers() != 1 {
		t.Errorf("register calls = %d, want 1", transport.Registers())
	}
	if len(sleeper.Sleeps()) != 0 {
		t.Errorf("sleeps = %v, want none", sleeper.Sleeps())
	}
	if seq.State() != StateAborted {
		t.Errorf("state = %s, want aborted", seq.State())
	}
}

func TestRun_AbortsAfterMaxAttempts(t *testing.T) {
	last := &ingest.Error{Kind: ingest.KindServerError, Detail: "attempt 10"}
	transport := &testutil.MockTransport{
		RegisterFunc: func(call int) (string, error) {
			if call == MaxAttempts {
				return "", last
			}
			return "", networkErr()
		},
	}
	sleeper := testutil.NewSleeper(nil)
	seq := New(transport, zap.NewNop(), WithSleep(sleeper.Sleep))

	_, err := seq.Run(context.Background(), testutil.NewRegisterRequest())

	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("Run() error = %v, want *AbortError", err)
	}
	if abort.Attempts != MaxAttempts {
		t.Errorf("Attempts = %d, want %d", abort.Attempts, MaxAttempts)
	}
	if !errors.Is(err, last) {
		t.Errorf("abort reason = %v, want last error", abort.Err)
	}
	if transport.Registers() != MaxAttempts {
		t.Errorf("register calls = %d, want %d", transport.Registers(), MaxAttempts)
	}
	if n := len(sleeper.Sleeps()); n != MaxAttempts-1 {
		t.Errorf("sleeps = %d, want %d (none after the final failure)", n, MaxAttempts-1)
	}
}

func TestRun_RetriesEveryNonAuthKind(t *testing.T) {
	kinds := []ingest.Kind{
		ingest.KindNotRegistered,
		ingest.KindRateLimited,
		ingest.KindServerError,
		ingest.KindNetworkError,
		ingest.KindOther,
	}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			transport := &testutil.MockTransport{
				RegisterFunc: func(call int) (string, error) {
					if call == 1 {
						return "", &ingest.Error{Kind: kind}
					}
					return "srv", nil
				},
			}
			sleeper := testutil.NewSleeper(nil)
			seq := New(transport, zap.NewNop(), WithSleep(sleeper.Sleep))

			if _, err := seq.Run(context.Background(), testutil.NewRegisterRequest()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := sleeper.Sleeps(); len(got) != 1 || got[0] != backoff.Delay(1) {
				t.Errorf("sleeps = %v, want [%v]", got, backoff.Delay(1))
			}
		})
	}
}

func TestRun_ContextCancelledDuringSleep(t *testing.T) {
	transport := &testutil.MockTransport{
		RegisterFunc: func(int) (string, error) { return "", networkErr() },
	}
	ctx, cancel := context.WithCancel(context.Background())
	seq := New(transport, zap.NewNop(), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}))

	_, err := seq.Run(ctx, testutil.NewRegisterRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if transport.Registers() != 1 {
		t.Errorf("register calls = %d, want 1", transport.Registers())
	}
	if seq.State() != StateAborted {
		t.Errorf("state = %s, want aborted", seq.State())
	}
}

func TestRun_WithMaxAttempts(t *testing.T) {
	transport := &testutil.MockTransport{
		RegisterFunc: func(int) (string, error) { return "", networkErr() },
	}
	seq := New(transport, zap.NewNop(), WithSleep(testutil.NewSleeper(nil).Sleep), WithMaxAttempts(3))

	if _, err := seq.Run(context.Background(), testutil.NewRegisterRequest()); err == nil {
		t.Fatal("Run() error = nil")
	}
	if transport.Registers() != 3 {
		t.Errorf("register calls = %d, want 3", transport.Registers())
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly on cancellation")
	}
}
