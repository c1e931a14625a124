// Package ollama provides an embedding adapter for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"campusqa/internal/domain"
	"campusqa/internal/embedding"
)

var _ domain.Embedder = (*Embedder)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the Ollama embedder.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Embedder generates embeddings with Ollama's /api/embeddings endpoint.
type Embedder struct {
	client    *http.Client
	baseURL   string
	model     string
	dimension atomic.Int64
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewEmbedder(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Embedder{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

// Name identifies the model; the provider prefix keeps equally named models apart.
func (e *Embedder) Name() string { return "ollama/" + e.model }

// Dimension is learned from the first response.
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

// Embed calls the server once per text; the endpoint has no batch form.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := e.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	dim, err := embedding.CheckVectors("ollama", len(texts), out)
	if err != nil {
		return nil, err
	}
	if dim > 0 {
		e.dimension.CompareAndSwap(0, int64(dim))
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.Unavailable("ollama", fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, domain.Unavailable("ollama", fmt.Errorf("decode response: %w", err))
	}
	return er.Embedding, nil
}

// Ping validates the server is reachable by checking the /api/tags endpoint.
func (e *Embedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return domain.Unavailable("ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Unavailable("ollama", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
