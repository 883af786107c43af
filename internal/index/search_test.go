package index

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/efebarandurmaz/recall/internal/store"
)

func unit(v ...float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func twoRecordSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := newTestBuilder(2).Build([]store.Row{
		row("A", []float64{1, 0}),
		row("B", []float64{0, 1}),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return snap
}

func TestSearch_OrdersByScore(t *testing.T) {
	snap := twoRecordSnapshot(t)

	results, err := Search(snap, unit(0.9, 0.1), Params{TopK: 2, TopN: 2, Threshold: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Key != "A" || results[1].Key != "B" {
		t.Fatalf("expected [A, B], got %+v", results)
	}
	if math.Abs(results[0].Score-0.9939) > 1e-3 {
		t.Errorf("expected A score ~0.994, got %v", results[0].Score)
	}
	if math.Abs(results[1].Score-0.1104) > 1e-3 {
		t.Errorf("expected B score ~0.110, got %v", results[1].Score)
	}
	if results[0].Title != "title A" {
		t.Errorf("unexpected title %q", results[0].Title)
	}
}

func TestSearch_ThresholdFilters(t *testing.T) {
	snap := twoRecordSnapshot(t)

	results, err := Search(snap, unit(0.9, 0.1), Params{TopK: 2, TopN: 2, Threshold: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Key != "A" {
		t.Fatalf("expected [A], got %+v", results)
	}
}

func TestSearch_TopKBudgetAppliesBeforeThreshold(t *testing.T) {
	snap := twoRecordSnapshot(t)

	results, err := Search(snap, unit(0.9, 0.1), Params{TopK: 1, TopN: 5, Threshold: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Key != "A" {
		t.Fatalf("expected only the top candidate, got %+v", results)
	}
}

func TestSearch_EmptyWhenAllFiltered(t *testing.T) {
	snap := twoRecordSnapshot(t)

	results, err := Search(snap, unit(-1, -1), Params{TopK: 2, TopN: 2, Threshold: 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestSearch_TiesBrokenByOrdinal(t *testing.T) {
	snap, err := newTestBuilder(2).Build([]store.Row{
		row("z-first", []float64{1, 0}),
		row("a-second", []float64{1, 0}),
		row("m-third", []float64{1, 0}),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		results, err := Search(snap, []float32{1, 0}, Params{TopK: 2, TopN: 3, Threshold: 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 || results[0].Key != "z-first" || results[1].Key != "a-second" {
			t.Fatalf("expected lowest ordinals to win ties, got %+v", results)
		}
	}
}

func TestSearch_ZeroQueryScoresZero(t *testing.T) {
	snap := twoRecordSnapshot(t)

	results, err := Search(snap, []float32{0, 0}, Params{TopK: 2, TopN: 2, Threshold: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both records at score 0, got %+v", results)
	}
	for _, r := range results {
		if r.Score != 0 {
			t.Errorf("expected score 0, got %v", r.Score)
		}
	}
}

func TestSearch_ShapeMismatch(t *testing.T) {
	snap := twoRecordSnapshot(t)

	_, err := Search(snap, []float32{1, 0, 0}, Params{TopK: 1, TopN: 1})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestSearch_InvalidParams(t *testing.T) {
	snap := twoRecordSnapshot(t)
	tests := []struct {
		name string
		p    Params
	}{
		{"zero top_k", Params{TopK: 0, TopN: 1}},
		{"zero top_n", Params{TopK: 1, TopN: 0}},
		{"negative threshold", Params{TopK: 1, TopN: 1, Threshold: -0.1}},
		{"threshold above one", Params{TopK: 1, TopN: 1, Threshold: 1.5}},
		{"nan threshold", Params{TopK: 1, TopN: 1, Threshold: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Search(snap, []float32{1, 0}, tt.p)
			if !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestSearch_ResultsDoNotAliasSnapshot(t *testing.T) {
	r := row("A", []float64{1, 0})
	r.Metadata = map[string]any{"sections": map[string]any{"resolution": "restart"}}
	snap, err := newTestBuilder(2).Build([]store.Row{r})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	results, _ := Search(snap, []float32{1, 0}, Params{TopK: 1, TopN: 1})
	results[0].Sections["resolution"] = "changed"

	rec, _ := snap.Record("A")
	if rec.Sections["resolution"] != "restart" {
		t.Fatal("mutating a result changed the snapshot")
	}
}

func TestSearch_Properties(t *testing.T) {
	const dim = 16
	rng := rand.New(rand.NewSource(42))

	rows := make([]store.Row, 200)
	for i := range rows {
		vec := make([]float64, dim)
		for j := range vec {
			vec[j] = rng.NormFloat64()
		}
		rows[i] = row(string(rune('a'+i%26))+string(rune('0'+i/26)), normalize64(vec))
	}
	snap, err := newTestBuilder(dim).Build(rows)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	for trial := 0; trial < 50; trial++ {
		q := make([]float32, dim)
		for j := range q {
			q[j] = float32(rng.NormFloat64())
		}
		q = unit(q...)
		p := Params{TopK: 1 + rng.Intn(50), TopN: 1 + rng.Intn(20), Threshold: rng.Float64() * 0.5}

		results, err := Search(snap, q, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) > p.TopN || len(results) > p.TopK {
			t.Fatalf("too many results: %d for %+v", len(results), p)
		}
		for i, r := range results {
			if r.Score < p.Threshold {
				t.Fatalf("score %v below threshold %v", r.Score, p.Threshold)
			}
			if i > 0 && r.Score > results[i-1].Score {
				t.Fatalf("scores increase at %d: %v > %v", i, r.Score, results[i-1].Score)
			}
		}

		// Threshold 0 keeps min(top_n, top_k) of the best candidates.
		all, _ := Search(snap, q, Params{TopK: p.TopK, TopN: p.TopN, Threshold: 0})
		want := min(p.TopN, p.TopK)
		nonNegative := 0
		for _, r := range all {
			if r.Score >= 0 {
				nonNegative++
			}
		}
		if nonNegative != len(all) || len(all) > want {
			t.Fatalf("unexpected threshold-0 results: %d (want <= %d)", len(all), want)
		}
	}
}

func normalize64(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	n := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}
