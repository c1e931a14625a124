package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
)

func hit(id string, sim float64, seq int64) Hit {
	return Hit{Passage: domain.Passage{ID: id}, Similarity: sim, Seq: seq}
}

func ids(c []domain.Candidate) []string {
	out := make([]string, len(c))
	for i, x := range c {
		out[i] = x.Passage.ID
	}
	return out
}

func TestRank_TiesByInsertionOrder(t *testing.T) {
	got := Rank([]Hit{hit("c", 0.5, 3), hit("a", 0.9, 5), hit("b", 0.5, 1), hit("d", 0.1, 0)}, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, domain.Similarity(0.9), got[0].Similarity)
}

func TestRank_KBounds(t *testing.T) {
	assert.Len(t, Rank([]Hit{hit("a", 1, 0)}, 10), 1)
	assert.Empty(t, Rank([]Hit{hit("a", 1, 0)}, 0))
	assert.Empty(t, Rank(nil, 5))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 3}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func entry(id string, vec ...float64) domain.Entry {
	return domain.Entry{Passage: domain.Passage{ID: id, Text: "text " + id}, Vector: vec}
}

func TestValidateBatch(t *testing.T) {
	model := domain.ModelInfo{Name: "hashing-2"}
	dim, err := ValidateBatch("pages", model, []domain.Entry{entry("a", 1, 0), entry("b", 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = ValidateBatch("", model, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = ValidateBatch("pages", domain.ModelInfo{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ValidateBatch("pages", model, []domain.Entry{entry("a", 1, 0), entry("b", 1)})
	assert.ErrorIs(t, err, domain.ErrModelMismatch)

	_, err = ValidateBatch("pages", domain.ModelInfo{Name: "m", Dimension: 3}, []domain.Entry{entry("a", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrModelMismatch)

	_, err = ValidateBatch("pages", model, []domain.Entry{entry("a")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDedupe_LastWins(t *testing.T) {
	out := Dedupe([]domain.Entry{entry("a", 1), entry("b", 2), entry("a", 3)})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Passage.ID)
	assert.Equal(t, []float64{3}, out[0].Vector)
	assert.Equal(t, "b", out[1].Passage.ID)
}

// dropUpsertStore records calls and has no atomic replace.
type dropUpsertStore struct {
	domain.VectorStore
	calls []string
}

func (s *dropUpsertStore) Drop(context.Context, string) error {
	s.calls = append(s.calls, "drop")
	return nil
}

func (s *dropUpsertStore) Upsert(context.Context, string, domain.ModelInfo, []domain.Entry) error {
	s.calls = append(s.calls, "upsert")
	return nil
}

func TestReplace_FallbackValidatesBeforeDrop(t *testing.T) {
	ctx := context.Background()
	model := domain.ModelInfo{Name: "m", Dimension: 2}
	s := &dropUpsertStore{}

	err := Replace(ctx, s, "pages", model, []domain.Entry{entry("a", 1, 0), entry("b", 1)})
	assert.ErrorIs(t, err, domain.ErrModelMismatch)
	err = Replace(ctx, s, "pages", model, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.Empty(t, s.calls)

	require.NoError(t, Replace(ctx, s, "pages", model, []domain.Entry{entry("a", 1, 0)}))
	assert.Equal(t, []string{"drop", "upsert"}, s.calls)
}
