package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// seedRecord is one JSON line in the column layout written by the indexing
// job. Embedding may be a number array or its string rendering.
type seedRecord struct {
	ErrorID       string          `json:"error_id"`
	Embedding     json.RawMessage `json:"embedding"`
	ErrorTitle    string          `json:"error_title"`
	ErrorMetadata map[string]any  `json:"error_metadata"`
	ModelName     string          `json:"model_name"`
	EmbeddingDim  int             `json:"embedding_dim"`
}

// DecodeJSONLines reads rows from JSON-lines input. Blank lines are skipped.
func DecodeJSONLines(r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var rows []Row
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec seedRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ErrorID == "" {
			return nil, fmt.Errorf("line %d: missing error_id", line)
		}
		vec, err := seedVector(rec.Embedding)
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", line, rec.ErrorID, err)
		}
		dim := rec.EmbeddingDim
		if dim == 0 {
			if vec.Encoding != EncodingNative {
				return nil, fmt.Errorf("line %d (%s): embedding_dim is required for text embeddings", line, rec.ErrorID)
			}
			dim = len(vec.Values)
		}
		rows = append(rows, Row{
			Key:       rec.ErrorID,
			Vector:    vec,
			Title:     rec.ErrorTitle,
			Metadata:  rec.ErrorMetadata,
			ModelName: rec.ModelName,
			Dimension: dim,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func seedVector(raw json.RawMessage) (RawVector, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return RawVector{}, fmt.Errorf("missing embedding")
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return RawVector{}, err
		}
		return TextVector(text), nil
	}
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return RawVector{}, fmt.Errorf("embedding: %w", err)
	}
	return NativeVector(values), nil
}
