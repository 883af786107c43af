package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 512

// Client calls {base_url}/embeddings on an OpenAI-compatible server
// (OpenAI, Ollama, vLLM, text-embeddings-inference).
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewClient creates an embeddings client. A zero timeout means 30s.
func NewClient(baseURL, model, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "openai-compatible" }

// Model returns the model name sent with each request.
func (c *Client) Model() string { return c.model }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// embedResponse accepts both the OpenAI shape and the bare
// {"embeddings": [[...]]} shape some local servers return.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	data, err := json.Marshal(embedRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, providerError("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, providerError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providerError("request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerError("read body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := string(respBody)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, providerError("decode body", err)
	}

	var embeddings [][]float32
	switch {
	case len(result.Data) > 0:
		embeddings = make([][]float32, len(result.Data))
		for i, d := range result.Data {
			pos := i
			if d.Index != nil && *d.Index >= 0 && *d.Index < len(result.Data) {
				pos = *d.Index
			}
			embeddings[pos] = d.Embedding
		}
	case len(result.Embeddings) > 0:
		embeddings = result.Embeddings
	default:
		return nil, providerError("decode body", errors.New("response has no embedding field"))
	}

	if len(embeddings) != len(texts) {
		return nil, providerError("decode body", fmt.Errorf("got %d embeddings for %d inputs", len(embeddings), len(texts)))
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, providerError("decode body", fmt.Errorf("embedding %d is empty", i))
		}
	}
	return embeddings, nil
}
