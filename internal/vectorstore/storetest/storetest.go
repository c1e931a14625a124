// Package storetest is the behaviour suite every vector store backend runs.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
	"campusqa/internal/vectorstore"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) domain.VectorStore

var model = domain.ModelInfo{Name: "test/model", Dimension: 3}

func entry(id, text string, vec ...float64) domain.Entry {
	return domain.Entry{
		Passage: domain.Passage{
			ID:        id,
			Text:      text,
			SourceURL: "https://jindal.utdallas.edu/" + id,
			Metadata:  domain.Metadata{"sitemap": domain.String("Jindal"), "page": domain.Int(1)},
		},
		Vector: vec,
	}
}

func ids(c []domain.Candidate) []string {
	out := make([]string, len(c))
	for i, x := range c {
		out[i] = x.Passage.ID
	}
	return out
}

// Run exercises upsert, search ordering, describe, drop and replace.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("missing collection", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Describe(ctx, "pages")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Search(ctx, "pages", []float64{1, 0, 0}, 3)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("search orders by similarity then insertion", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{
			entry("far", "far away", 0, 0, 1),
			entry("tie-1", "first tie", 1, 1, 0),
			entry("best", "exact", 1, 0, 0),
			entry("tie-2", "second tie", 1, 1, 0),
		}))

		got, err := s.Search(ctx, "pages", []float64{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"best", "tie-1", "tie-2"}, ids(got))
		assert.InDelta(t, 1.0, float64(got[0].Similarity), 1e-9)
		assert.Equal(t, "exact", got[0].Passage.Text)
		assert.Equal(t, "https://jindal.utdallas.edu/best", got[0].Passage.SourceURL)
		assert.Equal(t, "Jindal", got[0].Passage.Metadata.Get("sitemap"))
		assert.Equal(t, "1", got[0].Passage.Metadata.Get("page"))

		all, err := s.Search(ctx, "pages", []float64{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		none, err := s.Search(ctx, "pages", []float64{1, 0, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("upsert replaces and keeps order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{
			entry("a", "old text", 1, 1, 0),
			entry("b", "other", 1, 1, 0),
		}))
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{
			entry("a", "new text", 1, 1, 0),
		}))

		info, err := s.Describe(ctx, "pages")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Count)
		assert.Equal(t, model, info.Model)

		got, err := s.Search(ctx, "pages", []float64{1, 1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"a", "b"}, ids(got))
		assert.Equal(t, "new text", got[0].Passage.Text)
	})

	t.Run("model mismatch rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{entry("a", "x", 1, 0, 0)}))

		err := s.Upsert(ctx, "pages", domain.ModelInfo{Name: "other/model", Dimension: 3},
			[]domain.Entry{entry("b", "y", 1, 0, 0)})
		assert.ErrorIs(t, err, domain.ErrModelMismatch)

		info, err := s.Describe(ctx, "pages")
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
	})

	t.Run("invalid batch writes nothing", func(t *testing.T) {
		s := newStore(t)
		err := s.Upsert(ctx, "pages", model, []domain.Entry{
			entry("a", "fine", 1, 0, 0),
			entry("b", "short vector", 1, 0),
		})
		assert.Error(t, err)
		_, err = s.Describe(ctx, "pages")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("drop", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{entry("a", "x", 1, 0, 0)}))
		require.NoError(t, s.Drop(ctx, "pages"))
		_, err := s.Describe(ctx, "pages")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, s.Drop(ctx, "pages"))
	})

	t.Run("replace swaps contents and model", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{
			entry("a", "x", 1, 0, 0),
			entry("b", "y", 0, 1, 0),
		}))

		other := domain.ModelInfo{Name: "other/model", Dimension: 2}
		require.NoError(t, vectorstore.Replace(ctx, s, "pages", other, []domain.Entry{entry("c", "z", 1, 0)}))

		info, err := s.Describe(ctx, "pages")
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
		assert.Equal(t, "other/model", info.Model.Name)
		got, err := s.Search(ctx, "pages", []float64{1, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(got))
	})

	t.Run("failed replace keeps old contents", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, "pages", model, []domain.Entry{
			entry("a", "x", 1, 0, 0),
			entry("b", "y", 0, 1, 0),
		}))

		err := vectorstore.Replace(ctx, s, "pages", model, []domain.Entry{
			entry("c", "fine", 1, 0, 0),
			entry("d", "", 0, 1, 0),
		})
		assert.Error(t, err)
		err = vectorstore.Replace(ctx, s, "pages", model, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyInput)

		info, err := s.Describe(ctx, "pages")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Count)
		assert.Equal(t, model.Name, info.Model.Name)
	})
}
