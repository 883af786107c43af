package index

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/efebarandurmaz/recall/internal/store"
)

// decodeVector turns a stored vector into float32s. Text encodings are tried
// as JSON first and then with the literal parser.
func decodeVector(key string, raw store.RawVector) ([]float32, error) {
	switch raw.Encoding {
	case store.EncodingNative:
		return fromFloat64(key, raw.Values)
	case store.EncodingText:
		values, jsonErr := parseJSONVector(raw.Text)
		if jsonErr == nil {
			return fromFloat64(key, values)
		}
		values, litErr := parseLiteralVector(raw.Text)
		if litErr != nil {
			return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("invalid format (json: %v; literal: %v)", jsonErr, litErr)}
		}
		return fromFloat64(key, values)
	default:
		return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("unknown encoding %v", raw.Encoding)}
	}
}

func fromFloat64(key string, values []float64) ([]float32, error) {
	out := make([]float32, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("non-finite value at position %d", i)}
		}
		f := float32(v)
		if math.IsInf(float64(f), 0) {
			return nil, &DecodeError{Key: key, Reason: fmt.Sprintf("value out of float32 range at position %d", i)}
		}
		out[i] = f
	}
	return out, nil
}

func parseJSONVector(text string) ([]float64, error) {
	var values []float64
	if err := json.Unmarshal([]byte(text), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// parseLiteralVector accepts the looser forms some drivers and scripts emit:
// "(0.1, 0.2)", "{0.1,0.2}", "[1., .5, ]", "[+1e-3]".
func parseLiteralVector(text string) ([]float64, error) {
	s := strings.TrimSpace(text)
	if len(s) < 2 {
		return nil, fmt.Errorf("not a sequence literal")
	}
	open, close := s[0], s[len(s)-1]
	if !(open == '[' && close == ']') && !(open == '(' && close == ')') && !(open == '{' && close == '}') {
		return nil, fmt.Errorf("unbalanced or missing brackets")
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}
	parts := strings.Split(body, ",")
	// A single trailing comma is allowed, as in "(1.0,)".
	if strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	values := make([]float64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty element at position %d", i)
		}
		if strings.ContainsAny(p, "[](){}") {
			return nil, fmt.Errorf("nested sequence at position %d", i)
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("element %d is not a finite number", i)
		}
		values[i] = v
	}
	return values, nil
}
