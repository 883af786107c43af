package index

import (
	"errors"
	"testing"

	"github.com/efebarandurmaz/recall/internal/store"
)

func TestDecodeVector(t *testing.T) {
	tests := []struct {
		name string
		raw  store.RawVector
		want []float32
	}{
		{"native", store.NativeVector([]float64{0.5, -1}), []float32{0.5, -1}},
		{"json", store.TextVector("[0.1, 0.2, 0.3]"), []float32{0.1, 0.2, 0.3}},
		{"pgvector text", store.TextVector("[1,0]"), []float32{1, 0}},
		{"tuple", store.TextVector("(0.25, 0.75)"), []float32{0.25, 0.75}},
		{"braces", store.TextVector("{1,2}"), []float32{1, 2}},
		{"trailing comma", store.TextVector("[1.0, 2.0,]"), []float32{1, 2}},
		{"bare decimals", store.TextVector("[.5, 1., +2e-1]"), []float32{0.5, 1, 0.2}},
		{"whitespace", store.TextVector("  [ 3 ,\n 4 ]  "), []float32{3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeVector("k", tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("index %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodeVector_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  store.RawVector
	}{
		{"garbage", store.TextVector("not a vector")},
		{"empty string", store.TextVector("")},
		{"unbalanced", store.TextVector("[1, 2")},
		{"nested", store.TextVector("[[1, 2]]")},
		{"double comma", store.TextVector("[1,,2]")},
		{"word element", store.TextVector("[1, two]")},
		{"nan literal", store.TextVector("[nan, 1]")},
		{"native inf", store.RawVector{Encoding: store.EncodingNative, Values: []float64{1, posInf()}}},
		{"beyond float32 range", store.NativeVector([]float64{1e39, 0})},
		{"text beyond float32 range", store.TextVector("[0, -1e39]")},
		{"unknown encoding", store.RawVector{Encoding: store.Encoding(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeVector("err-7", tt.raw)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if decodeErr.Key != "err-7" {
				t.Errorf("expected key err-7, got %s", decodeErr.Key)
			}
		})
	}
}

func TestParseLiteralVector_Empty(t *testing.T) {
	got, err := parseLiteralVector("()")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty vector, got %v", got)
	}
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
