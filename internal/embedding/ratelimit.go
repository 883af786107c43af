package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitProvider caps the request rate to the embedding endpoint.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider allows requestsPerMinute calls with the given burst.
// A non-positive rate disables limiting.
func NewRateLimitProvider(inner Provider, requestsPerMinute, burst int) *RateLimitProvider {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Embed waits for capacity, then delegates. A cancelled wait returns the
// context error.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providerError("rate limit", err)
	}
	return r.inner.Embed(ctx, texts)
}
