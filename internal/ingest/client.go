// Package ingest is the HTTP client for the Nubilus ingest API. It performs
// each call exactly once and classifies the outcome into a typed *Error;
// retry policy belongs to the callers.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/HerbHall/nubilus-agent/internal/version"
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// API paths relative to the configured base URL.
const (
	RegisterPath    = "/api/ingest/register"
	MetricsPath     = "/api/ingest/metrics"
	HeartbeatPath   = "/api/ingest/heartbeat"
	HealthCheckPath = "/api/ingest/health"
)

// APIKeyHeader carries the static credential on every request.
const APIKeyHeader = "X-API-Key"

// RequestIDHeader tags each request for log correlation.
const RequestIDHeader = "X-Request-ID"

// DefaultTimeout bounds every request end to end.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of an error response is kept as detail.
const maxErrorBody = 64 << 10

// Client talks to the ingest API. It holds no mutable state after
// construction and is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request-level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a Client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   DefaultTimeout,
			Transport: newTransport(c.logger),
		}
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Register announces this host and returns the server-side identity.
// A 2xx response whose body reports success=false is an Other error.
func (c *Client) Register(ctx context.Context, req *models.RegisterRequest) (string, error) {
	resp, err := c.post(ctx, RegisterPath, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := classifyStatus(resp.StatusCode, readBody(resp), "register", false)
		if err == nil {
			err = newError(KindOther, fmt.Sprintf("unexpected status %d during register", resp.StatusCode), nil)
		}
		return "", err
	}

	var body models.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", newError(KindOther, "failed to parse response: "+err.Error(), err)
	}
	if !body.Success {
		return "", newError(KindOther, body.Message, nil)
	}

	serverID := "unknown"
	if body.Data != nil && body.Data.ServerID != "" {
		serverID = body.Data.ServerID
	}
	return serverID, nil
}

// SubmitMetrics uploads one snapshot.
func (c *Client) SubmitMetrics(ctx context.Context, snapshot *models.MetricsSnapshot) error {
	return c.send(ctx, MetricsPath, "submit metrics", snapshot)
}

// Heartbeat marks this host as alive. The request has no body.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.send(ctx, HeartbeatPath, "heartbeat", nil)
}

// SubmitHealthCheck uploads the result of one endpoint probe.
func (c *Client) SubmitHealthCheck(ctx context.Context, payload *models.HealthCheckPayload) error {
	return c.send(ctx, HealthCheckPath, "health check", payload)
}

// send performs a POST whose response body is irrelevant on success.
func (c *Client) send(ctx context.Context, path, op string, payload any) error {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, readBody(resp), op, true); err != nil {
		return err
	}
	return nil
}

// post issues the request. Transport-level failures come back as
// NetworkError; the caller owns resp.Body otherwise.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, newError(KindOther, "marshal request: "+err.Error(), err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, newError(KindOther, "create request: "+err.Error(), err)
	}

	requestID := uuid.NewString()
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("ingest request failed",
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, newError(KindNetworkError, err.Error(), err)
	}

	c.logger.Debug("ingest request completed",
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// readBody drains up to maxErrorBody bytes for use as error detail.
func readBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// newTransport builds a pooled transport with HTTP/2 negotiated over TLS.
func newTransport(logger *zap.Logger) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if _, err := http2.ConfigureTransports(t); err != nil {
		logger.Warn("HTTP/2 unavailable, falling back to HTTP/1.1", zap.Error(err))
	}
	return t
}
