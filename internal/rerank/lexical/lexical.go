// Package lexical scores passages by term overlap with the query. It stands
// in for the cross-encoder when no reranking server is available.
package lexical

import (
	"context"
	"math"

	"campusqa/internal/domain"
	"campusqa/internal/textutil"
)

var _ domain.RelevanceScorer = (*Scorer)(nil)

type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

func (s *Scorer) Name() string { return "lexical-ochiai" }

func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	qset := textutil.TermSet(query)
	out := make([]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = Ochiai(qset, textutil.TermSet(t))
	}
	return out, nil
}

// Ochiai returns |A∩B| / sqrt(|A||B|), or 0 when either set is empty.
func Ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
