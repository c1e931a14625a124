package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (e *countingEmbedder) Name() string   { return "fake/model" }
func (e *countingEmbedder) Dimension() int { return 2 }

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCachedEmbedder_HitsSkipBackend(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, client, CacheConfig{TTL: time.Hour})
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"alpha", "be"})
	require.NoError(t, err)
	second, err := c.Embed(ctx, []string{"be", "gamma", "alpha"})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{5, 1}, {2, 1}}, first)
	assert.Equal(t, [][]float64{{2, 1}, {5, 1}, {5, 1}}, second)
	assert.Equal(t, [][]string{{"alpha", "be"}, {"gamma"}}, inner.calls)
	assert.Equal(t, "fake/model", c.Name())

	keys := mr.Keys()
	require.Len(t, keys, 3)
	assert.Contains(t, keys[0], "campusqa:emb:fake/model:")
	assert.Equal(t, time.Hour, mr.TTL(keys[0]))
}

func TestCachedEmbedder_RedisDownFallsThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()
	inner := &countingEmbedder{}

	vecs, err := NewCachedEmbedder(inner, client, CacheConfig{}).Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 1}}, vecs)
}

func TestCachedEmbedder_BackendErrorPropagates(t *testing.T) {
	_, client := setupTestRedis(t)
	inner := &countingEmbedder{err: domain.Unavailable("fake", errors.New("down"))}

	_, err := NewCachedEmbedder(inner, client, CacheConfig{}).Embed(context.Background(), []string{"abc"})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestCheckVectors(t *testing.T) {
	dim, err := CheckVectors("x", 2, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = CheckVectors("x", 2, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	_, err = CheckVectors("x", 2, [][]float64{{1, 2}, {1}})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestNormalize(t *testing.T) {
	v := []float64{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-12)
	assert.InDelta(t, 0.8, v[1], 1e-12)

	zero := []float64{0, 0}
	Normalize(zero)
	assert.Equal(t, []float64{0, 0}, zero)
}
