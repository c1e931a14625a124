package crossencoder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
)

func TestClient_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Tell me about MS Accounting", req.Query)
		assert.Equal(t, []string{"marketing", "accounting"}, req.Texts)
		// The server answers sorted by score, not by input order.
		json.NewEncoder(w).Encode([]rerankResult{{Index: 1, Score: 0.98}, {Index: 0, Score: 0.02}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	assert.Equal(t, "crossencoder/BAAI/bge-reranker-base", c.Name())
	got, err := c.Score(context.Background(), "Tell me about MS Accounting", []string{"marketing", "accounting"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.02, 0.98}, got)
}

func TestClient_BadResponses(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		},
		"short": func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}})
		},
		"duplicate index": func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}, {Index: 0, Score: 2}})
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewClient(Config{BaseURL: srv.URL}).Score(context.Background(), "q", []string{"a", "b"})
			assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		})
	}
}

func TestClient_NoTextsSkipsServer(t *testing.T) {
	got, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"}).Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
