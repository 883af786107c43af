// Package client calls a running recall service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/efebarandurmaz/recall/internal/service"
	"github.com/efebarandurmaz/recall/internal/temporal"
)

// ErrNotReady is returned by WaitReady when the service did not become
// ready in time.
var ErrNotReady = errors.New("client: service not ready")

// StatusError is a non-2xx response.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("recall: status %d: %s", e.Code, e.Detail)
}

// Client talks to one service instance.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
}

// WithLogger returns the client with a different logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	return c
}

// BaseURL returns the service URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e service.ErrorResponse
		if json.Unmarshal(respBody, &e) != nil || e.Detail == "" {
			e.Detail = string(respBody)
		}
		return &StatusError{Code: resp.StatusCode, Detail: e.Detail}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Search runs a similarity query.
func (c *Client) Search(ctx context.Context, req service.QueryRequest) (*service.QueryResponse, error) {
	var resp service.QueryResponse
	if err := c.do(ctx, http.MethodPost, "/rag/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &resp, nil
}

// Reload asks the service to rebuild its index.
func (c *Client) Reload(ctx context.Context) (*service.ReloadResponse, error) {
	var resp service.ReloadResponse
	if err := c.do(ctx, http.MethodPost, "/rag/reload", nil, &resp); err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	return &resp, nil
}

// Health returns the service health body.
func (c *Client) Health(ctx context.Context) (*service.HealthResponse, error) {
	var resp service.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &resp, nil
}

// Ready reports whether GET /ready answers 200.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/ready", nil, nil)
	if err == nil {
		return true, nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusServiceUnavailable {
		return false, nil
	}
	return false, err
}

// WaitReady polls /ready every interval until it answers 200 or timeout
// elapses. Connection errors count as not ready.
func (c *Client) WaitReady(ctx context.Context, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	c.logger.Info("waiting for service", "url", c.baseURL, "timeout", timeout)

	start := time.Now()
	b := retry.WithMaxDuration(timeout, retry.NewConstant(interval))
	var last error
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := c.Ready(ctx)
		if ok {
			return nil
		}
		if err == nil {
			err = ErrNotReady
		}
		last = err
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s after %s: %v", ErrNotReady, c.baseURL, timeout, last)
	}
	c.logger.Info("service ready", "url", c.baseURL, "waited", time.Since(start).Round(time.Millisecond))
	return nil
}

// Reloader reloads arbitrary service instances. It satisfies
// temporal.Reloader.
type Reloader struct {
	Timeout time.Duration
}

var _ temporal.Reloader = Reloader{}

// Reload posts /rag/reload to baseURL. A 500 response means the stored data
// is unusable and is reported as temporal.ErrReloadRejected.
func (r Reloader) Reload(ctx context.Context, baseURL string) (temporal.ReloadResult, error) {
	resp, err := New(baseURL, r.Timeout).Reload(ctx)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusInternalServerError {
			return temporal.ReloadResult{}, fmt.Errorf("%w: %w", temporal.ErrReloadRejected, err)
		}
		return temporal.ReloadResult{}, err
	}
	return temporal.ReloadResult{SnapshotID: resp.SnapshotID, Records: resp.IndexSize}, nil
}
