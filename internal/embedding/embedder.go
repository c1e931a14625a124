// Package embedding holds helpers shared by the embedder adapters and the
// Redis-backed embedding cache.
package embedding

import (
	"context"
	"fmt"
	"math"

	"campusqa/internal/domain"
)

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float64, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CheckVectors verifies a backend answered with one non-empty vector per
// input, all of the same length, and returns that length.
func CheckVectors(backend string, want int, vecs [][]float64) (int, error) {
	if len(vecs) != want {
		return 0, domain.Unavailable(backend, fmt.Errorf("got %d embeddings for %d inputs", len(vecs), want))
	}
	dim := 0
	for i, v := range vecs {
		if len(v) == 0 {
			return 0, domain.Unavailable(backend, fmt.Errorf("empty embedding for input %d", i))
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return 0, domain.Unavailable(backend, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dim))
		}
	}
	return dim, nil
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}
