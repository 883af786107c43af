// Package store reads raw incident embedding rows from durable storage.
// It knows nothing about indexing or search; backends live in subpackages.
package store

import (
	"context"
	"errors"
)

// ErrSchemaNotReady is returned when the backing table or collection has not
// been created yet. The upstream indexing job creates it on first run.
var ErrSchemaNotReady = errors.New("store: schema not ready")

// ErrMalformedVector is returned when a stored embedding cannot be mapped to
// a RawVector at all. Retrying will not help.
var ErrMalformedVector = errors.New("store: malformed stored vector")

// Encoding identifies how a stored vector was serialized.
type Encoding int

const (
	// EncodingNative means the backend returned numbers directly.
	EncodingNative Encoding = iota
	// EncodingText means the backend returned a textual rendering such as
	// "[0.1,0.2]" that still has to be parsed.
	EncodingText
)

func (e Encoding) String() string {
	switch e {
	case EncodingNative:
		return "native"
	case EncodingText:
		return "text"
	default:
		return "unknown"
	}
}

// RawVector is a stored vector before decoding. Exactly one of Values or Text
// is meaningful, selected by Encoding.
type RawVector struct {
	Encoding Encoding
	Values   []float64
	Text     string
}

// NativeVector wraps numbers returned by the backend.
func NativeVector(values []float64) RawVector {
	return RawVector{Encoding: EncodingNative, Values: values}
}

// NativeVector32 wraps float32 numbers returned by the backend.
func NativeVector32(values []float32) RawVector {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return RawVector{Encoding: EncodingNative, Values: out}
}

// TextVector wraps a textual vector encoding.
func TextVector(text string) RawVector {
	return RawVector{Encoding: EncodingText, Text: text}
}

// Row is one stored embedding as written by the upstream indexing job.
type Row struct {
	Key    string
	Vector RawVector
	Title  string
	// Metadata holds the nested payload: "sections" and "metadata" maps.
	Metadata  map[string]any
	ModelName string
	Dimension int
}

// Reader returns every stored row ordered by key.
type Reader interface {
	// ReadAll returns all rows ordered by key so that ordinals are
	// deterministic. An empty result is not an error.
	ReadAll(ctx context.Context) ([]Row, error)
	// Close releases resources.
	Close() error
}
