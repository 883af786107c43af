package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/recall/internal/observability"
	"github.com/efebarandurmaz/recall/internal/store"
)

// DefaultDimension is the output size of nomic-embed-text-v1.5.
const DefaultDimension = 768

// BuilderConfig configures validation of stored rows.
type BuilderConfig struct {
	Dimension int
	ModelName string
	// Normalize L2-normalizes every row at build time. Off by default: the
	// upstream job already stores unit vectors.
	Normalize bool
	Logger    *slog.Logger
}

// Builder validates stored rows and assembles snapshots.
type Builder struct {
	dim       int
	model     string
	normalize bool
	logger    *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{dim: dim, model: cfg.ModelName, normalize: cfg.Normalize, logger: logger}
}

// Dimension returns the configured embedding dimension.
func (b *Builder) Dimension() int { return b.dim }

// Load reads every row from r and builds a snapshot.
func (b *Builder) Load(ctx context.Context, r store.Reader) (*Snapshot, error) {
	ctx, span := observability.StartBuildSpan(ctx, b.dim)
	defer span.End()

	rows, err := r.ReadAll(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	snap, err := b.Build(rows)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordBuildResult(span, snap.ID(), snap.Size())
	return snap, nil
}

// Build validates rows and returns a new snapshot. Any invalid row fails the
// whole build; partial snapshots are never produced.
func (b *Builder) Build(rows []store.Row) (*Snapshot, error) {
	if len(rows) == 0 {
		return nil, ErrNoDataYet
	}
	b.logger.Info("building index", "rows", len(rows), "dimension", b.dim)

	snap := &Snapshot{
		id:      uuid.NewString(),
		dim:     b.dim,
		matrix:  make([]float32, 0, len(rows)*b.dim),
		keys:    make([]string, 0, len(rows)),
		records: make(map[string]Record, len(rows)),
	}

	var modelMismatches int
	var mismatchedModel string
	norms := make([]float64, 0, len(rows))
	for _, row := range rows {
		if _, dup := snap.records[row.Key]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateKey, row.Key)
		}
		if b.model != "" && row.ModelName != b.model {
			modelMismatches++
			mismatchedModel = row.ModelName
		}
		if row.Dimension != b.dim {
			return nil, fmt.Errorf("%w: row %s declares %d, expected %d", ErrDimensionMismatch, row.Key, row.Dimension, b.dim)
		}

		vec, err := decodeVector(row.Key, row.Vector)
		if err != nil {
			return nil, err
		}
		if len(vec) != b.dim {
			return nil, fmt.Errorf("%w: invalid embedding shape for %s: expected %d, got %d", ErrDimensionMismatch, row.Key, b.dim, len(vec))
		}

		norm := l2(vec)
		if b.normalize && norm > 0 {
			for i := range vec {
				vec[i] = float32(float64(vec[i]) / norm)
			}
		}
		norms = append(norms, norm)

		snap.matrix = append(snap.matrix, vec...)
		snap.keys = append(snap.keys, row.Key)
		snap.records[row.Key] = newRecord(row)
	}

	if modelMismatches > 0 {
		b.logger.Warn("embedding model mismatch",
			"rows", modelMismatches,
			"stored", mismatchedModel,
			"expected", b.model,
		)
	}

	snap.norms = normStats(norms)
	snap.builtAt = time.Now().UTC()
	b.logger.Info("index built",
		"snapshot", snap.id,
		"vectors", snap.Size(),
		"norm_min", snap.norms.Min,
		"norm_max", snap.norms.Max,
		"norm_mean", snap.norms.Mean,
	)
	return snap, nil
}

func newRecord(row store.Row) Record {
	rec := Record{
		Key:       row.Key,
		Title:     row.Title,
		Sections:  map[string]string{},
		Metadata:  map[string]any{},
		ModelName: row.ModelName,
	}
	if rec.Title == "" {
		rec.Title = row.Key
	}
	if sections, ok := row.Metadata["sections"].(map[string]any); ok {
		for k, v := range sections {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				rec.Sections[k] = s
			} else {
				rec.Sections[k] = fmt.Sprint(v)
			}
		}
	}
	if meta, ok := row.Metadata["metadata"].(map[string]any); ok {
		for k, v := range meta {
			rec.Metadata[k] = v
		}
	}
	return rec
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func normStats(norms []float64) NormStats {
	if len(norms) == 0 {
		return NormStats{}
	}
	st := NormStats{Min: norms[0], Max: norms[0]}
	var sum float64
	for _, n := range norms {
		st.Min = math.Min(st.Min, n)
		st.Max = math.Max(st.Max, n)
		sum += n
	}
	st.Mean = sum / float64(len(norms))
	return st
}
