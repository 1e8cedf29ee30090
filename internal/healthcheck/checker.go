// Package healthcheck probes configured endpoints from the agent's vantage
// point and reports each outcome to the ingest API.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/HerbHall/nubilus-agent/internal/version"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of one probe. A probe that ran to completion always
// yields a Result, even when the target is down.
type Result struct {
	IsUp         bool
	StatusCode   *int
	ResponseTime time.Duration
	ErrorMessage string
}

// Checker executes a health check against a target and returns the result.
type Checker interface {
	Check(ctx context.Context, target string) (*Result, error)
}

// HTTPChecker issues a GET and treats 2xx and 3xx as up.
type HTTPChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPChecker creates an HTTP checker with the given per-probe timeout.
// Redirects are not followed so the first status is reported.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

// Check requests target and returns the result.
func (c *HTTPChecker) Check(ctx context.Context, target string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout after %s", c.timeout)
		}
		return &Result{ResponseTime: elapsed, ErrorMessage: msg}, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	status := resp.StatusCode
	result := &Result{
		StatusCode:   &status,
		ResponseTime: elapsed,
		IsUp:         status >= 200 && status < 400,
	}
	if !result.IsUp {
		result.ErrorMessage = fmt.Sprintf("unexpected status %d", status)
	}
	return result, nil
}

// ICMPChecker pings targets using ICMP via pro-bing.
type ICMPChecker struct {
	timeout time.Duration
	count   int
}

// NewICMPChecker creates a new ICMP checker with the given timeout and ping count.
func NewICMPChecker(timeout time.Duration, count int) *ICMPChecker {
	return &ICMPChecker{
		timeout: timeout,
		count:   count,
	}
}

// Check pings the target and returns the result.
func (c *ICMPChecker) Check(ctx context.Context, target string) (*Result, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = c.count
	pinger.Timeout = c.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			return &Result{ErrorMessage: runErr.Error()}, nil
		}
		stats := pinger.Statistics()
		result := &Result{
			ResponseTime: stats.AvgRtt,
			IsUp:         stats.PacketsRecv > 0,
		}
		if !result.IsUp {
			result.ErrorMessage = "all packets lost"
		}
		return result, nil

	case <-ctx.Done():
		pinger.Stop()
		return &Result{ErrorMessage: "check cancelled"}, nil
	}
}
