// Package sqlite implements store.Reader on a SQLite table using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/efebarandurmaz/recall/internal/store"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// DefaultTable is the table the upstream indexing job writes to.
const DefaultTable = "ragembedding"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens a SQLite database. For in-memory databases pass ":memory:";
// the pool is pinned to one connection so every query sees the same data.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Store reads embedding rows from one table.
type Store struct {
	db    *sql.DB
	table string
}

// New wraps an open database. The table is not created; a missing table is
// reported by ReadAll as store.ErrSchemaNotReady.
func New(db *sql.DB, table string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite: db is nil")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlite: invalid table name %q", table)
	}
	return &Store{db: db, table: table}, nil
}

// EnsureSchema creates the embedding table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
    error_id TEXT PRIMARY KEY,
    embedding,
    error_title TEXT,
    error_metadata TEXT,
    model_name TEXT,
    embedding_dim INTEGER
)`)
	if err != nil {
		return fmt.Errorf("sqlite: create %s: %w", s.table, err)
	}
	return nil
}

// ReadAll returns all rows ordered by key.
func (s *Store) ReadAll(ctx context.Context) ([]store.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT error_id, embedding, error_title, error_metadata, model_name, embedding_dim
FROM `+s.table+` ORDER BY error_id`)
	if err != nil {
		if isMissingTable(err) {
			return nil, fmt.Errorf("%w: %v", store.ErrSchemaNotReady, err)
		}
		return nil, fmt.Errorf("sqlite: query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var (
			key       string
			embedding any
			title     sql.NullString
			meta      sql.NullString
			model     sql.NullString
			dim       sql.NullInt64
		)
		if err := rows.Scan(&key, &embedding, &title, &meta, &model, &dim); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		vec, err := rawVector(embedding)
		if err != nil {
			return nil, fmt.Errorf("sqlite: row %s: %w", key, err)
		}
		metadata := map[string]any{}
		if meta.Valid && strings.TrimSpace(meta.String) != "" {
			if err := json.Unmarshal([]byte(meta.String), &metadata); err != nil {
				return nil, fmt.Errorf("sqlite: row %s metadata: %w", key, err)
			}
			if metadata == nil {
				metadata = map[string]any{}
			}
		}
		out = append(out, store.Row{
			Key:       key,
			Vector:    vec,
			Title:     title.String,
			Metadata:  metadata,
			ModelName: model.String,
			Dimension: int(dim.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

// Insert writes rows, replacing existing keys. Text vectors are stored as TEXT,
// native vectors as little-endian float32 BLOBs.
func (s *Store) Insert(ctx context.Context, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO `+s.table+`
(error_id, embedding, error_title, error_metadata, model_name, embedding_dim) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var embedding any
		switch r.Vector.Encoding {
		case store.EncodingText:
			embedding = r.Vector.Text
		default:
			embedding = EncodeEmbedding(r.Vector.Values)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: row %s metadata: %w", r.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, r.Key, embedding, r.Title, string(meta), r.ModelName, r.Dimension); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func rawVector(v any) (store.RawVector, error) {
	switch val := v.(type) {
	case string:
		return store.TextVector(val), nil
	case []byte:
		vec, err := DecodeEmbedding(val)
		if err != nil {
			return store.RawVector{}, fmt.Errorf("%w: %v", store.ErrMalformedVector, err)
		}
		return store.NativeVector32(vec), nil
	case nil:
		return store.RawVector{}, fmt.Errorf("%w: embedding is NULL", store.ErrMalformedVector)
	default:
		return store.RawVector{}, fmt.Errorf("%w: unsupported embedding column type %T", store.ErrMalformedVector, v)
	}
}

func isMissingTable(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}

// EncodeEmbedding encodes a vector as little-endian IEEE 754 float32 values
// without a length prefix.
func EncodeEmbedding(vec []float64) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(v)))
	}
	return b
}

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

var _ store.Reader = (*Store)(nil)
