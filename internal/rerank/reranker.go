// Package rerank reorders retrieval candidates by a relevance scorer.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"campusqa/internal/domain"
)

type Reranker struct {
	scorer domain.RelevanceScorer
}

func New(scorer domain.RelevanceScorer) *Reranker {
	return &Reranker{scorer: scorer}
}

func (r *Reranker) Name() string { return r.scorer.Name() }

// Rerank scores every candidate against query and returns the top
// min(k, len(candidates)) by descending relevance. Equal scores keep their
// retrieval order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, k int) ([]domain.Ranked, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", domain.ErrInvalidInput, k)
	}
	if k == 0 || len(candidates) == 0 {
		return []domain.Ranked{}, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Passage.Text
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("reranking: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, domain.Unavailable(r.scorer.Name(),
			fmt.Errorf("got %d scores for %d candidates", len(scores), len(candidates)))
	}

	ranked := make([]domain.Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = domain.Ranked{Passage: c.Passage, Relevance: domain.Relevance(scores[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Relevance > ranked[j].Relevance })
	return ranked[:min(k, len(ranked))], nil
}
