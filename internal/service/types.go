package service

import "time"

// QueryRequest is the body of POST /rag/query. Nil fields take the
// configured defaults.
type QueryRequest struct {
	Query               string   `json:"query"`
	TopK                *int     `json:"top_k,omitempty"`
	TopN                *int     `json:"top_n,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

// ResultItem is one matched incident.
type ResultItem struct {
	ErrorID         string            `json:"error_id"`
	ErrorTitle      string            `json:"error_title"`
	SimilarityScore float64           `json:"similarity_score"`
	SourceFile      *string           `json:"source_file"`
	Page            *int              `json:"page"`
	Sections        map[string]string `json:"sections"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// QueryMetadata describes how a query was served.
type QueryMetadata struct {
	NumResults          int     `json:"num_results"`
	SearchTimeMS        float64 `json:"search_time_ms"`
	TopK                int     `json:"top_k"`
	TopN                int     `json:"top_n"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	SnapshotID          string  `json:"snapshot_id"`
}

// QueryResponse is the body returned by POST /rag/query.
type QueryResponse struct {
	Query    string        `json:"query"`
	Results  []ResultItem  `json:"results"`
	Metadata QueryMetadata `json:"metadata"`
}

// ReloadResponse is the body returned by POST /rag/reload.
type ReloadResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	IndexSize  int    `json:"index_size"`
	SnapshotID string `json:"snapshot_id"`
}

// HealthResponse is the body of GET /health and GET /ready.
type HealthResponse struct {
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	State      string    `json:"state"`
	IndexSize  int       `json:"index_size"`
	Dimension  int       `json:"dimension,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
	Uptime     string    `json:"uptime,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
