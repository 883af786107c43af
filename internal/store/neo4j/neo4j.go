// Package neo4j implements store.Reader over embedding nodes in Neo4j.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/recall/internal/store"
)

// DefaultLabel is the node label the upstream indexing job writes.
const DefaultLabel = "RagEmbedding"

var labelName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store reads embedding nodes of one label.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	label    string
}

// New creates a Neo4j-backed reader. Connectivity is not verified here: the
// readiness loop treats an unreachable server as a transient error.
func New(uri, username, password, database, label string) (*Store, error) {
	if label == "" {
		label = DefaultLabel
	}
	if !labelName.MatchString(label) {
		return nil, fmt.Errorf("neo4j: invalid label %q", label)
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	return &Store{driver: driver, database: database, label: label}, nil
}

func (s *Store) query() string {
	return "MATCH (e:" + s.label + ") " +
		"RETURN e.error_id AS key, e.embedding AS embedding, e.error_title AS title, " +
		"e.error_metadata AS metadata, e.model_name AS model_name, e.embedding_dim AS embedding_dim " +
		"ORDER BY e.error_id"
}

// ReadAll returns every node ordered by key. A label with no nodes yields an
// empty result, which the builder reports as no data yet.
func (s *Store) ReadAll(ctx context.Context) ([]store.Row, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, s.driver, s.query(), nil, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("neo4j read %s: %w", s.label, err)
	}
	rows := make([]store.Row, 0, len(result.Records))
	for _, rec := range result.Records {
		row, err := recordToRow(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close closes the driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

func recordToRow(rec *neo4j.Record) (store.Row, error) {
	key, _ := stringField(rec, "key")
	if key == "" {
		return store.Row{}, fmt.Errorf("neo4j: record without error_id")
	}
	title, _ := stringField(rec, "title")
	model, _ := stringField(rec, "model_name")

	raw, _ := rec.Get("embedding")
	vec, err := rawVector(raw)
	if err != nil {
		return store.Row{}, fmt.Errorf("neo4j: node %s: %w", key, err)
	}

	var dim int
	if v, ok := rec.Get("embedding_dim"); ok {
		if n, ok := v.(int64); ok {
			dim = int(n)
		}
	}

	metadata := map[string]any{}
	if v, ok := rec.Get("metadata"); ok && v != nil {
		switch m := v.(type) {
		case string:
			if m != "" {
				if err := json.Unmarshal([]byte(m), &metadata); err != nil {
					return store.Row{}, fmt.Errorf("neo4j: node %s metadata: %w", key, err)
				}
				if metadata == nil {
					metadata = map[string]any{}
				}
			}
		case map[string]any:
			metadata = m
		}
	}

	return store.Row{
		Key:       key,
		Vector:    vec,
		Title:     title,
		Metadata:  metadata,
		ModelName: model,
		Dimension: dim,
	}, nil
}

func stringField(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// rawVector maps a Neo4j property to a RawVector. Lists arrive as []any of
// float64 or int64; strings are left for the text decoder.
func rawVector(v any) (store.RawVector, error) {
	switch val := v.(type) {
	case string:
		return store.TextVector(val), nil
	case []float64:
		return store.NativeVector(val), nil
	case []any:
		out := make([]float64, len(val))
		for i, item := range val {
			switch n := item.(type) {
			case float64:
				out[i] = n
			case int64:
				out[i] = float64(n)
			default:
				return store.RawVector{}, fmt.Errorf("%w: embedding element %d has type %T", store.ErrMalformedVector, i, item)
			}
		}
		return store.NativeVector(out), nil
	case nil:
		return store.RawVector{}, fmt.Errorf("%w: embedding is null", store.ErrMalformedVector)
	default:
		return store.RawVector{}, fmt.Errorf("%w: unsupported embedding property type %T", store.ErrMalformedVector, v)
	}
}

var _ store.Reader = (*Store)(nil)
