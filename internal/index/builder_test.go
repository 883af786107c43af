package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/efebarandurmaz/recall/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBuilder(dim int) *Builder {
	return NewBuilder(BuilderConfig{Dimension: dim, ModelName: "nomic", Logger: quietLogger()})
}

func row(key string, vec []float64) store.Row {
	return store.Row{
		Key:       key,
		Vector:    store.NativeVector(vec),
		Title:     "title " + key,
		ModelName: "nomic",
		Dimension: len(vec),
	}
}

type staticReader struct {
	rows []store.Row
	err  error
}

func (r *staticReader) ReadAll(ctx context.Context) ([]store.Row, error) { return r.rows, r.err }
func (r *staticReader) Close() error                                    { return nil }

func TestNewBuilder_Defaults(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	if b.Dimension() != DefaultDimension {
		t.Fatalf("expected default dimension %d, got %d", DefaultDimension, b.Dimension())
	}
}

func TestBuild_NoRows(t *testing.T) {
	_, err := newTestBuilder(2).Build(nil)
	if !errors.Is(err, ErrNoDataYet) {
		t.Fatalf("expected ErrNoDataYet, got %v", err)
	}
	if IsFatal(err) {
		t.Fatal("no data must not be fatal")
	}
}

func TestBuild_Basic(t *testing.T) {
	r := row("a", []float64{1, 0})
	r.Metadata = map[string]any{
		"sections": map[string]any{"description": "disk", "resolution": "clean", "code": nil, "steps": 3},
		"metadata": map[string]any{"source_file": "runbook.pdf", "page": 4},
	}
	snap, err := newTestBuilder(2).Build([]store.Row{r, row("b", []float64{0, 1})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Size() != 2 || snap.Dimension() != 2 {
		t.Fatalf("unexpected snapshot size=%d dim=%d", snap.Size(), snap.Dimension())
	}
	if snap.ID() == "" {
		t.Error("expected a generation id")
	}
	if snap.Key(0) != "a" || snap.Key(1) != "b" {
		t.Errorf("ordinals not in row order: %s, %s", snap.Key(0), snap.Key(1))
	}
	if len(snap.matrix) != 4 {
		t.Errorf("expected dense matrix of 4 values, got %d", len(snap.matrix))
	}

	rec, ok := snap.Record("a")
	if !ok {
		t.Fatal("expected record a")
	}
	if rec.Sections["description"] != "disk" || rec.Sections["steps"] != "3" {
		t.Errorf("unexpected sections %v", rec.Sections)
	}
	if _, ok := rec.Sections["code"]; ok {
		t.Error("nil section should be dropped")
	}
	if rec.Metadata["source_file"] != "runbook.pdf" {
		t.Errorf("unexpected metadata %v", rec.Metadata)
	}

	norms := snap.Norms()
	if norms.Min != 1 || norms.Max != 1 || norms.Mean != 1 {
		t.Errorf("unexpected norm stats %+v", norms)
	}
}

func TestBuild_TitleDefaultsToKey(t *testing.T) {
	r := row("a", []float64{1, 0})
	r.Title = ""
	snap, err := newTestBuilder(2).Build([]store.Row{r})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := snap.Record("a")
	if rec.Title != "a" {
		t.Errorf("expected title to default to key, got %q", rec.Title)
	}
}

func TestBuild_DeclaredDimensionMismatch(t *testing.T) {
	bad := row("b", []float64{0, 1})
	bad.Dimension = 3

	_, err := newTestBuilder(2).Build([]store.Row{row("a", []float64{1, 0}), bad})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatal("dimension mismatch must be fatal")
	}
}

func TestBuild_VectorLengthMismatch(t *testing.T) {
	bad := row("b", []float64{0, 1, 0})
	bad.Dimension = 2

	_, err := newTestBuilder(2).Build([]store.Row{bad})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestBuild_DecodeErrorFailsBuild(t *testing.T) {
	bad := store.Row{Key: "b", Vector: store.TextVector("oops"), Dimension: 2, ModelName: "nomic"}

	_, err := newTestBuilder(2).Build([]store.Row{row("a", []float64{1, 0}), bad})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatal("decode error must be fatal")
	}
}

func TestBuild_ModelMismatchIsNotFatal(t *testing.T) {
	r := row("a", []float64{1, 0})
	r.ModelName = "other-model"

	snap, err := newTestBuilder(2).Build([]store.Row{r})
	if err != nil {
		t.Fatalf("model mismatch should only warn, got %v", err)
	}
	if snap.Size() != 1 {
		t.Fatalf("expected 1 vector, got %d", snap.Size())
	}
}

func TestBuild_DuplicateKey(t *testing.T) {
	_, err := newTestBuilder(2).Build([]store.Row{row("a", []float64{1, 0}), row("a", []float64{0, 1})})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatal("duplicate key must be fatal")
	}
}

func TestIsFatal_MalformedStoredVector(t *testing.T) {
	err := fmt.Errorf("sqlite: row a: %w: embedding is NULL", store.ErrMalformedVector)
	if !IsFatal(err) {
		t.Fatal("malformed stored vector must be fatal")
	}
}

func TestBuild_Normalize(t *testing.T) {
	b := NewBuilder(BuilderConfig{Dimension: 2, Normalize: true, Logger: quietLogger()})
	snap, err := b.Build([]store.Row{row("a", []float64{3, 4})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := l2(snap.row(0)); math.Abs(n-1) > 1e-6 {
		t.Fatalf("expected unit row, got norm %v", n)
	}
	if snap.Norms().Max != 5 {
		t.Errorf("norm stats should describe stored vectors, got %+v", snap.Norms())
	}
}

func TestLoad(t *testing.T) {
	b := newTestBuilder(2)

	snap, err := b.Load(context.Background(), &staticReader{rows: []store.Row{row("a", []float64{1, 0})}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Size() != 1 {
		t.Fatalf("expected 1 vector, got %d", snap.Size())
	}

	readErr := errors.New("connection refused")
	if _, err := b.Load(context.Background(), &staticReader{err: readErr}); !errors.Is(err, readErr) {
		t.Fatalf("expected reader error to propagate, got %v", err)
	}
}
