package index

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

// Params bounds a search. TopK is the candidate budget taken before the
// threshold filter; TopN caps the final result list.
type Params struct {
	TopK      int
	TopN      int
	Threshold float64
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidParams, p.TopK)
	}
	if p.TopN < 1 {
		return fmt.Errorf("%w: top_n must be >= 1, got %d", ErrInvalidParams, p.TopN)
	}
	if math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0, 1], got %g", ErrInvalidParams, p.Threshold)
	}
	return nil
}

// Result is a single match.
type Result struct {
	Key      string
	Score    float64
	Title    string
	Sections map[string]string
	Metadata map[string]any
}

type candidate struct {
	ord   int
	score float64
}

// better orders by descending score, then ascending ordinal.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.ord < b.ord
}

// worstFirst is a heap whose root is the weakest kept candidate.
type worstFirst []candidate

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Search scores query against every row of snap by inner product and returns
// at most p.TopN results with score >= p.Threshold, best first. The query is
// expected to be unit-normalized so scores are cosine similarities.
func Search(snap *Snapshot, query []float32, p Params) ([]Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(query) != snap.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrShapeMismatch, len(query), snap.dim)
	}

	k := p.TopK
	if k > snap.Size() {
		k = snap.Size()
	}
	h := make(worstFirst, 0, k)
	for i := 0; i < snap.Size(); i++ {
		c := candidate{ord: i, score: dot(query, snap.row(i))}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if k > 0 && better(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	sort.Slice(h, func(i, j int) bool { return better(h[i], h[j]) })

	results := make([]Result, 0, min(p.TopN, len(h)))
	for _, c := range h {
		if c.score < p.Threshold {
			continue
		}
		if len(results) == p.TopN {
			break
		}
		results = append(results, snap.result(c))
	}
	return results, nil
}

func (s *Snapshot) result(c candidate) Result {
	key := s.keys[c.ord]
	rec := s.records[key]
	sections := make(map[string]string, len(rec.Sections))
	for k, v := range rec.Sections {
		sections[k] = v
	}
	metadata := make(map[string]any, len(rec.Metadata))
	for k, v := range rec.Metadata {
		metadata[k] = v
	}
	return Result{
		Key:      key,
		Score:    c.score,
		Title:    rec.Title,
		Sections: sections,
		Metadata: metadata,
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
