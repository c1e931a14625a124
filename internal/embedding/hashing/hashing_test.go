package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func TestEmbedder_UnitVectorsAndDeterminism(t *testing.T) {
	e := NewEmbedder(256)
	assert.Equal(t, "hashing-256", e.Name())
	assert.Equal(t, 256, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"UTD offers an MS in Accounting.", "UTD offers an MS in Accounting."})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 256)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, math.Sqrt(cosine(vecs[0], vecs[0])), 1e-9)
}

func TestEmbedder_SharedTermsScoreHigher(t *testing.T) {
	e := NewEmbedder(0)
	vecs, err := e.Embed(context.Background(), []string{
		"Tell me about MS Accounting",
		"UTD offers an MS in Accounting.",
		"The marketing department hosts career fairs.",
	})
	require.NoError(t, err)

	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestEmbedder_StopwordsOnlyGivesZeroVector(t *testing.T) {
	vecs, err := NewEmbedder(32).Embed(context.Background(), []string{"what is the"})
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 32), vecs[0])
}

func TestEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
