// Package crossencoder scores (query, passage) pairs with a cross-encoder
// served by text-embeddings-inference's /rerank endpoint.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"campusqa/internal/domain"
)

var _ domain.RelevanceScorer = (*Client)(nil)

const (
	DefaultBaseURL = "http://localhost:8081"
	DefaultModel   = "BAAI/bge-reranker-base"
	DefaultTimeout = 60 * time.Second
)

type Config struct {
	BaseURL string
	// Model is informational; the server decides which model answers.
	Model   string
	Timeout time.Duration
}

type Client struct {
	client  *http.Client
	baseURL string
	model   string
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
}

func (c *Client) Name() string { return "crossencoder/" + c.model }

// Score returns one score per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: reranker url: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("reranker", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.Unavailable("reranker", fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, domain.Unavailable("reranker", fmt.Errorf("decode response: %w", err))
	}
	if len(results) != len(texts) {
		return nil, domain.Unavailable("reranker", fmt.Errorf("got %d scores for %d texts", len(results), len(texts)))
	}
	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) || seen[r.Index] {
			return nil, domain.Unavailable("reranker", fmt.Errorf("bad result index %d", r.Index))
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}
