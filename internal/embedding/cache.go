package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"campusqa/internal/domain"
	"campusqa/internal/logger"
)

var _ domain.Embedder = (*CachedEmbedder)(nil)

// CacheConfig configures the Redis embedding cache.
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// CachedEmbedder serves repeated texts from Redis. Keys include the model name
// so a model change never returns stale vectors. Redis failures fall through
// to the wrapped embedder.
type CachedEmbedder struct {
	inner  domain.Embedder
	redis  *goredis.Client
	config CacheConfig
}

func NewCachedEmbedder(inner domain.Embedder, redis *goredis.Client, cfg CacheConfig) *CachedEmbedder {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "campusqa:emb:"
	}
	return &CachedEmbedder{inner: inner, redis: redis, config: cfg}
}

func (c *CachedEmbedder) Name() string   { return c.inner.Name() }
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + c.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float64, len(texts))
	var missIdx []int
	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("embedding cache read failed", "error", err)
		cached = nil
	}
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				var v []float64
				if json.Unmarshal([]byte(s), &v) == nil && len(v) > 0 {
					out[i] = v
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
	}
	logger.Debug("embedding cache lookup", "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}
	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.redis.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		data, err := json.Marshal(vecs[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, c.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		logger.Warn("embedding cache write failed", "error", err)
	}
	return out, nil
}
