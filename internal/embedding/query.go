package embedding

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/efebarandurmaz/recall/internal/observability"
)

// DefaultTaskPrefix is the task marker nomic-style models expect on queries.
const DefaultTaskPrefix = "search_query: "

// QueryEmbedder produces normalized query vectors.
type QueryEmbedder struct {
	provider Provider
	model    string
	prefix   string
	metrics  *observability.RecallMetrics
	logger   *slog.Logger
}

// QueryOption configures a QueryEmbedder.
type QueryOption func(*QueryEmbedder)

// WithTaskPrefix overrides the text prepended to every query.
func WithTaskPrefix(prefix string) QueryOption {
	return func(q *QueryEmbedder) { q.prefix = prefix }
}

// WithMetrics records provider latency and failures.
func WithMetrics(m *observability.RecallMetrics) QueryOption {
	return func(q *QueryEmbedder) { q.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) QueryOption {
	return func(q *QueryEmbedder) { q.logger = l }
}

// NewQueryEmbedder wraps a provider. model is used only for tracing.
func NewQueryEmbedder(p Provider, model string, opts ...QueryOption) *QueryEmbedder {
	q := &QueryEmbedder{
		provider: p,
		model:    model,
		prefix:   DefaultTaskPrefix,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Embed returns the unit-length embedding of prefix+text. A zero vector
// from the provider is returned unchanged.
func (q *QueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, q.provider.Name(), q.model)
	defer span.End()

	start := time.Now()
	vecs, err := q.provider.Embed(ctx, []string{q.prefix + text})
	if err == nil && len(vecs) != 1 {
		err = providerError("embed", errors.New("expected exactly one embedding"))
	}
	if q.metrics != nil {
		q.metrics.RecordEmbed(time.Since(start), err)
	}
	if err != nil {
		observability.RecordError(span, err)
		q.logger.Warn("query embedding failed", "provider", q.provider.Name(), "error", err)
		return nil, providerError("embed", err)
	}

	return Normalize(vecs[0]), nil
}

// Normalize returns a unit-length copy of v. Zero vectors are copied as-is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
