// Package qdrant stores collections in a Qdrant server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusqa/internal/domain"
	"campusqa/internal/vectorstore"
)

const backend = "qdrant"

var _ domain.VectorStore = (*Storage)(nil)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates collections on first upsert.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: client,
	}
}

// payload is what every point carries besides its vector.
type payload struct {
	PassageID      string          `json:"passage_id"`
	Text           string          `json:"text"`
	SourceURL      string          `json:"source_url"`
	Metadata       domain.Metadata `json:"metadata,omitempty"`
	Seq            int64           `json:"seq"`
	EmbeddingModel string          `json:"embedding_model"`
	Dimension      int             `json:"dimension"`
}

func (p payload) passage() domain.Passage {
	md := p.Metadata
	if md == nil {
		md = domain.Metadata{}
	}
	return domain.Passage{ID: p.PassageID, Text: p.Text, SourceURL: p.SourceURL, Metadata: md}
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

// PointID maps a passage id onto the UUID Qdrant requires.
func PointID(passageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(passageID)).String()
}

func (s *Storage) collectionURL(name string, parts ...string) string {
	return s.url + "/collections/" + url.PathEscape(name) + strings.Join(parts, "")
}

func (s *Storage) Upsert(ctx context.Context, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim, err := vectorstore.ValidateBatch(name, model, entries)
	if err != nil {
		return err
	}
	model.Dimension = dim

	info, err := s.Describe(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if dim == 0 {
			return nil
		}
		if err := s.create(ctx, name, dim); err != nil {
			return err
		}
		info = domain.CollectionInfo{Name: name, Model: model}
	case err != nil:
		return err
	case info.Count > 0:
		if err := info.CheckModel(model); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}

	entries = vectorstore.Dedupe(entries)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = PointID(e.Passage.ID)
	}
	existing, err := s.seqs(ctx, name, ids)
	if err != nil {
		return err
	}

	// Points are never deleted one by one, so the count is also the next free seq.
	next := int64(info.Count)
	points := make([]point, len(entries))
	for i, e := range entries {
		seq, ok := existing[ids[i]]
		if !ok {
			seq = next
			next++
		}
		points[i] = point{
			ID:     ids[i],
			Vector: e.Vector,
			Payload: payload{
				PassageID:      e.Passage.ID,
				Text:           e.Passage.Text,
				SourceURL:      e.Passage.SourceURL,
				Metadata:       e.Passage.Metadata,
				Seq:            seq,
				EmbeddingModel: model.Name,
				Dimension:      dim,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL(name, "/points?wait=true"), body, nil)
}

func (s *Storage) create(ctx context.Context, name string, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil)
}

// seqs returns the stored sequence numbers of the ids that already exist.
func (s *Storage) seqs(ctx context.Context, name string, ids []string) (map[string]int64, error) {
	var resp struct {
		Result []point `json:"result"`
	}
	req := map[string]any{"ids": ids, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(name, "/points"), req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(resp.Result))
	for _, p := range resp.Result {
		out[p.ID] = p.Payload.Seq
	}
	return out, nil
}

func (s *Storage) Search(ctx context.Context, name string, vector []float64, k int) ([]domain.Candidate, error) {
	info, err := s.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Model.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, collection dimension %d",
			domain.ErrModelMismatch, len(vector), info.Model.Dimension)
	}
	if k <= 0 {
		return []domain.Candidate{}, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(name, "/points/search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]vectorstore.Hit, len(resp.Result))
	for i, r := range resp.Result {
		hits[i] = vectorstore.Hit{Passage: r.Payload.passage(), Similarity: r.Score, Seq: r.Payload.Seq}
	}
	return vectorstore.Rank(hits, k), nil
}

// Describe reads the vector size and point count from the collection, and
// the model name from any one point.
func (s *Storage) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var coll struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &coll); err != nil {
		return domain.CollectionInfo{}, err
	}
	info := domain.CollectionInfo{
		Name:  name,
		Model: domain.ModelInfo{Dimension: coll.Result.Config.Params.Vectors.Size},
		Count: coll.Result.PointsCount,
	}
	if info.Count == 0 {
		return info, nil
	}

	var scroll struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": 1, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(name, "/points/scroll"), req, &scroll); err != nil {
		return domain.CollectionInfo{}, err
	}
	if len(scroll.Result.Points) > 0 {
		info.Model.Name = scroll.Result.Points[0].Payload.EmbeddingModel
	}
	return info, nil
}

func (s *Storage) Drop(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends a JSON request. Transport failures and 5xx responses become
// backend-unavailable errors; 404 becomes ErrNotFound.
func (s *Storage) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: qdrant url: %v", domain.ErrConfiguration, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Unavailable(backend, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: qdrant %s", domain.ErrNotFound, endpoint)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Unavailable(backend, fmt.Errorf("%s %s: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.Unavailable(backend, fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}
