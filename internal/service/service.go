// Package service implements the query, reload and health operations behind
// the HTTP surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/efebarandurmaz/recall/internal/index"
	"github.com/efebarandurmaz/recall/internal/observability"
	"github.com/efebarandurmaz/recall/internal/readiness"
)

var (
	// ErrNotReady means no snapshot is being served yet.
	ErrNotReady = errors.New("index not loaded; service is not ready")
	// ErrInvalidRequest means request parameters are out of range.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request bounds.
const (
	MaxTopK = 100
	MaxTopN = 20
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the snapshot handle owned by the readiness orchestrator.
type Index interface {
	Snapshot() *index.Snapshot
	Reload(ctx context.Context) (*index.Snapshot, error)
	Health() readiness.Status
}

// Defaults are applied to fields a request leaves unset.
type Defaults struct {
	TopK      int
	TopN      int
	Threshold float64
}

// DefaultDefaults returns top_k 10, top_n 3, threshold 0.6.
func DefaultDefaults() Defaults {
	return Defaults{TopK: 10, TopN: 3, Threshold: 0.6}
}

// Service serves similarity queries against the current snapshot.
type Service struct {
	idx      Index
	embedder Embedder
	defaults Defaults
	version  string
	metrics  *observability.RecallMetrics
	logger   *slog.Logger
}

// Config wires a Service.
type Config struct {
	Defaults Defaults
	Version  string
	Metrics  *observability.RecallMetrics
	Logger   *slog.Logger
}

// New creates a Service.
func New(idx Index, embedder Embedder, cfg Config) *Service {
	if cfg.Defaults == (Defaults{}) {
		cfg.Defaults = DefaultDefaults()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		idx:      idx,
		embedder: embedder,
		defaults: cfg.Defaults,
		version:  cfg.Version,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "service"),
	}
}

// Params resolves request fields against defaults and checks bounds.
func (s *Service) Params(req QueryRequest) (index.Params, error) {
	p := index.Params{TopK: s.defaults.TopK, TopN: s.defaults.TopN, Threshold: s.defaults.Threshold}
	if req.TopK != nil {
		p.TopK = *req.TopK
	}
	if req.TopN != nil {
		p.TopN = *req.TopN
	}
	if req.SimilarityThreshold != nil {
		p.Threshold = *req.SimilarityThreshold
	}

	switch {
	case strings.TrimSpace(req.Query) == "":
		return p, fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	case p.TopK < 1 || p.TopK > MaxTopK:
		return p, fmt.Errorf("%w: top_k must be in [1, %d], got %d", ErrInvalidRequest, MaxTopK, p.TopK)
	case p.TopN < 1 || p.TopN > MaxTopN:
		return p, fmt.Errorf("%w: top_n must be in [1, %d], got %d", ErrInvalidRequest, MaxTopN, p.TopN)
	case math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1:
		return p, fmt.Errorf("%w: similarity_threshold must be in [0, 1], got %g", ErrInvalidRequest, p.Threshold)
	}
	return p, nil
}

// Search embeds the query and ranks the current snapshot against it. The
// snapshot is captured once, so a concurrent reload never mixes generations
// within one response.
func (s *Service) Search(ctx context.Context, req QueryRequest) (resp *QueryResponse, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil && !errors.Is(err, ErrInvalidRequest) {
			n := 0
			if resp != nil {
				n = len(resp.Results)
			}
			s.metrics.RecordSearch(time.Since(start), n, err)
		}
	}()

	p, err := s.Params(req)
	if err != nil {
		return nil, err
	}

	snap := s.idx.Snapshot()
	if snap == nil {
		return nil, ErrNotReady
	}

	ctx, span := observability.StartSearchSpan(ctx, p.TopK, p.TopN, p.Threshold)
	defer span.End()

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	results, err := index.Search(snap, vec, p)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("search failed", "error", err, "query_dim", len(vec), "index_dim", snap.Dimension())
		return nil, err
	}
	observability.RecordSearchResult(span, snap.ID(), len(results))

	items := make([]ResultItem, len(results))
	for i, r := range results {
		items[i] = toItem(r)
	}

	return &QueryResponse{
		Query:   req.Query,
		Results: items,
		Metadata: QueryMetadata{
			NumResults:          len(items),
			SearchTimeMS:        float64(time.Since(start).Microseconds()) / 1000,
			TopK:                p.TopK,
			TopN:                p.TopN,
			SimilarityThreshold: p.Threshold,
			SnapshotID:          snap.ID(),
		},
	}, nil
}

func toItem(r index.Result) ResultItem {
	item := ResultItem{
		ErrorID:         r.Key,
		ErrorTitle:      r.Title,
		SimilarityScore: r.Score,
		Sections:        r.Sections,
		Metadata:        r.Metadata,
	}
	if item.Sections == nil {
		item.Sections = map[string]string{}
	}
	if v, ok := r.Metadata["source_file"].(string); ok {
		item.SourceFile = &v
	}
	if page, ok := intValue(r.Metadata["page"]); ok {
		item.Page = &page
	}
	return item
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

// Reload rebuilds the snapshot from storage.
func (s *Service) Reload(ctx context.Context) (*ReloadResponse, error) {
	snap, err := s.idx.Reload(ctx)
	if err != nil {
		return nil, err
	}
	return &ReloadResponse{
		Status:     "success",
		Message:    "Index reloaded",
		IndexSize:  snap.Size(),
		SnapshotID: snap.ID(),
	}, nil
}

// Health reports liveness plus index details. It never fails.
func (s *Service) Health() HealthResponse {
	st := s.idx.Health()
	resp := HealthResponse{
		Status:     "healthy",
		State:      st.State,
		IndexSize:  st.Records,
		Dimension:  st.Dimension,
		SnapshotID: st.SnapshotID,
		BuiltAt:    st.BuiltAt,
		LastError:  st.LastError,
		Uptime:     st.Uptime,
		Version:    s.version,
	}
	if !st.Ready {
		resp.Status = "unhealthy"
		resp.Reason = "Index not loaded"
	}
	return resp
}

// Ready reports whether queries can be served.
func (s *Service) Ready() (HealthResponse, bool) {
	h := s.Health()
	if h.Status != "healthy" {
		return h, false
	}
	h.Status = "ready"
	return h, true
}
