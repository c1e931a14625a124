// Package hashing implements an offline embedder that maps word terms into a
// fixed number of buckets. It needs no corpus preparation, so vectors stay
// comparable across incremental index runs.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"campusqa/internal/domain"
	"campusqa/internal/embedding"
	"campusqa/internal/textutil"
)

var _ domain.Embedder = (*Embedder)(nil)

const DefaultDimension = 512

// Embedder is a signed feature-hashing vectorizer with sublinear term weights.
type Embedder struct {
	dimension int
}

func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return fmt.Sprintf("hashing-%d", e.dimension) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float64 {
	vec := make([]float64, e.dimension)
	tf := make(map[string]int)
	for _, tok := range textutil.Terms(text) {
		tf[tok]++
	}
	terms := make([]string, 0, len(tf))
	for tok := range tf {
		terms = append(terms, tok)
	}
	sort.Strings(terms)
	for _, tok := range terms {
		count := tf[tok]
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimension))
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		vec[idx] += sign * (1 + math.Log(float64(count)))
	}
	embedding.Normalize(vec)
	return vec
}
