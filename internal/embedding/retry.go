package embedding

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig configures retry behavior for embedding calls.
type RetryConfig struct {
	MaxRetries int           // 0 = no retries
	RetryDelay time.Duration // initial delay, doubled per attempt
	MaxDelay   time.Duration // caps the exponential backoff
	Timeout    time.Duration // per-attempt timeout
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// RetryProvider wraps a Provider with per-attempt timeouts and retries.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) backoff() retry.Backoff {
	b := retry.NewExponential(r.config.RetryDelay)
	if r.config.MaxDelay > 0 {
		b = retry.WithCappedDuration(r.config.MaxDelay, b)
	}
	return retry.WithMaxRetries(uint64(max(r.config.MaxRetries, 0)), b)
}

// Embed calls the inner provider, retrying timeouts, 429 and 5xx responses.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attemptCtx := ctx
		if r.config.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()
		}

		embeddings, err := r.inner.Embed(attemptCtx, texts)
		if err == nil {
			out = embeddings
			return nil
		}
		if ctx.Err() == nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, providerError("embed", err)
	}
	return out, nil
}

// isRetryable reports whether an embedding error may succeed on retry.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
