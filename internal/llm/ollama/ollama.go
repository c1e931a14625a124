// Package ollama provides a LanguageModel backed by Ollama's /api/generate.
package ollama

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

var _ domain.LanguageModel = (*LLM)(nil)

// Default configuration values.
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "mistral:instruct"
	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second
)

// Config holds configuration for the Ollama LLM.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	// MaxTokens maps to num_predict; 0 leaves the server default.
	MaxTokens int
	Timeout   time.Duration
}

type LLM struct {
	client  *http.Client
	baseURL string
	model   string
	opts    options
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func New(cfg Config) *LLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LLM{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		opts:    options{NumPredict: cfg.MaxTokens, Temperature: cfg.Temperature},
	}
}

func (l *LLM) Name() string { return "ollama/" + l.model }

// Generate produces a completion in one non-streaming call.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	opts := l.opts
	body, err := json.Marshal(generateRequest{Model: l.model, Prompt: prompt, Stream: false, Options: &opts})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: llm url: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", domain.Unavailable("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.Unavailable("llm", fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", domain.Unavailable("llm", fmt.Errorf("decode response: %w", err))
	}
	return gr.Response, nil
}
