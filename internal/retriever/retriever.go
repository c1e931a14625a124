// Package retriever finds the passages nearest to a query in the index.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"campusqa/internal/domain"
	"campusqa/internal/embedding"
	"campusqa/internal/logger"
)

type Retriever struct {
	embedder   domain.Embedder
	store      domain.VectorStore
	collection string
}

func New(embedder domain.Embedder, store domain.VectorStore, collection string) *Retriever {
	return &Retriever{embedder: embedder, store: store, collection: collection}
}

// Retrieve returns up to k passages by descending similarity. k == 0 yields
// an empty result without touching any backend.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", domain.ErrInvalidInput, k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if k == 0 {
		return []domain.Candidate{}, nil
	}

	info, err := r.store.Describe(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	if info.Count == 0 {
		return nil, fmt.Errorf("%w: collection %q is empty", domain.ErrNotFound, r.collection)
	}
	if err := info.CheckModel(domain.ModelInfo{Name: r.embedder.Name(), Dimension: r.embedder.Dimension()}); err != nil {
		return nil, err
	}

	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	found, err := r.store.Search(ctx, r.collection, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", r.collection, err)
	}
	logger.Debug("retrieved passages", "collection", r.collection, "k", k, "found", len(found))
	return found, nil
}

// Distribution counts passages per value of a metadata key.
func Distribution(passages []domain.Passage, key string) map[string]int {
	out := make(map[string]int)
	for _, p := range passages {
		v := p.Metadata.Get(key)
		if v == "" {
			v = "unknown"
		}
		out[v]++
	}
	return out
}
