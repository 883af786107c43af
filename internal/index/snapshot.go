// Package index builds immutable in-memory embedding snapshots and runs exact
// inner-product similarity search against them.
package index

import (
	"time"
)

// Record is the payload kept for each indexed incident.
type Record struct {
	Key       string
	Title     string
	Sections  map[string]string
	Metadata  map[string]any
	ModelName string
}

// NormStats summarizes the L2 norms of the indexed vectors.
type NormStats struct {
	Min  float64
	Max  float64
	Mean float64
}

// Snapshot is one fully built index. It is never mutated after Build returns,
// so any number of goroutines may search it concurrently.
type Snapshot struct {
	id      string
	dim     int
	matrix  []float32 // row-major, len == len(keys)*dim
	keys    []string  // ordinal -> key
	records map[string]Record
	norms   NormStats
	builtAt time.Time
}

// ID is the generation id assigned at build time.
func (s *Snapshot) ID() string { return s.id }

// Dimension returns the vector length.
func (s *Snapshot) Dimension() int { return s.dim }

// Size returns the number of indexed vectors.
func (s *Snapshot) Size() int { return len(s.keys) }

// Norms returns norm statistics recorded during the build.
func (s *Snapshot) Norms() NormStats { return s.norms }

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Key returns the key stored at ordinal i.
func (s *Snapshot) Key(i int) string { return s.keys[i] }

// Record returns the payload for key.
func (s *Snapshot) Record(key string) (Record, bool) {
	r, ok := s.records[key]
	return r, ok
}

func (s *Snapshot) row(i int) []float32 {
	return s.matrix[i*s.dim : (i+1)*s.dim]
}
