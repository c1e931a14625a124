// Package vectorstore holds the ranking and validation rules every vector
// store backend shares.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"campusqa/internal/domain"
)

// Hit is a scored passage together with its insertion sequence number.
type Hit struct {
	Passage    domain.Passage
	Similarity float64
	Seq        int64
}

// Rank orders hits by descending similarity, ties by ascending sequence, and
// keeps the first k.
func Rank(hits []Hit, k int) []domain.Candidate {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Seq < hits[j].Seq
	})
	if k > len(hits) {
		k = len(hits)
	}
	if k < 0 {
		k = 0
	}
	out := make([]domain.Candidate, k)
	for i := 0; i < k; i++ {
		out[i] = domain.Candidate{Passage: hits[i].Passage, Similarity: domain.Similarity(hits[i].Similarity)}
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ValidateBatch checks an upsert batch before anything is written: the
// collection name, every passage, and that all vectors match the model
// dimension (taken from the first vector when the model does not state one).
// It returns the batch dimension.
func ValidateBatch(collection string, model domain.ModelInfo, entries []domain.Entry) (int, error) {
	if collection == "" {
		return 0, fmt.Errorf("%w: empty collection name", domain.ErrConfiguration)
	}
	if model.Name == "" {
		return 0, fmt.Errorf("%w: embedding model name is required", domain.ErrInvalidInput)
	}
	dim := model.Dimension
	for _, e := range entries {
		if err := e.Passage.Validate(); err != nil {
			return 0, err
		}
		if len(e.Vector) == 0 {
			return 0, fmt.Errorf("%w: passage %s has no vector", domain.ErrInvalidInput, e.Passage.ID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return 0, fmt.Errorf("%w: passage %s vector has dimension %d, expected %d",
				domain.ErrModelMismatch, e.Passage.ID, len(e.Vector), dim)
		}
	}
	return dim, nil
}

// Dedupe keeps the last entry for every passage id, in first-seen order.
func Dedupe(entries []domain.Entry) []domain.Entry {
	pos := make(map[string]int, len(entries))
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.Passage.ID]; ok {
			out[i] = e
			continue
		}
		pos[e.Passage.ID] = len(out)
		out = append(out, e)
	}
	return out
}

// Replace drops the collection and writes entries in its place. Stores that
// implement domain.Replacer do this atomically; for the others the batch is
// validated first so a bad batch leaves the collection untouched.
func Replace(ctx context.Context, store domain.VectorStore, collection string, model domain.ModelInfo, entries []domain.Entry) error {
	if r, ok := store.(domain.Replacer); ok {
		return r.Replace(ctx, collection, model, entries)
	}
	if _, err := ValidateBatch(collection, model, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries to replace collection %q with", domain.ErrEmptyInput, collection)
	}
	if err := store.Drop(ctx, collection); err != nil {
		return fmt.Errorf("dropping collection %q: %w", collection, err)
	}
	return store.Upsert(ctx, collection, model, entries)
}
