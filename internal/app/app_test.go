package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/config"
	"campusqa/internal/crawler"
	"campusqa/internal/domain"
	"campusqa/internal/embedding"
	"campusqa/internal/rerank/crossencoder"
	"campusqa/internal/rerank/lexical"
	"campusqa/internal/vectorstore/sqlite"
)

// offlineConfig needs no running services.
func offlineConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Embedder.Type = "hashing"
	cfg.Embedder.Cache.Enabled = false
	cfg.VectorStore.SQLite.Path = filepath.Join(cfg.DataDir, "index", "pages.db")
	cfg.Reranker.Type = "lexical"
	return cfg
}

func TestOpen_QueryRequiresExistingIndex(t *testing.T) {
	cfg := offlineConfig(t)
	_, err := Open(context.Background(), cfg, NeedQuery)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpen_IndexThenQuery(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t)

	res, err := Open(ctx, cfg, NeedChunker|NeedIndex)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, res.Store)
	assert.Equal(t, "hashing-512", res.Embedder.Name())
	assert.Nil(t, res.LLM)

	p, err := res.Pipeline()
	require.NoError(t, err)
	recs := p.TagPages(&crawler.Result{Pages: []crawler.PageRecord{
		{URL: "https://jindal.utdallas.edu/accounting/ms-accounting/", ExtractedText: "UTD offers an MS in Accounting."},
	}})
	chunks, _, err := p.ChunkPages(recs)
	require.NoError(t, err)
	_, err = p.Index(ctx, chunks)
	require.NoError(t, err)
	require.NoError(t, res.Close())

	res, err = Open(ctx, cfg, NeedQuery)
	require.NoError(t, err)
	defer res.Close()
	assert.IsType(t, &lexical.Scorer{}, res.Scorer)
	assert.Equal(t, "ollama/mistral:instruct", res.LLM.Name())

	p, err = res.Pipeline()
	require.NoError(t, err)
	info, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.VectorStore.Type = "faiss"
	_, err := Open(context.Background(), cfg, NeedIndex)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewEmbedder_WithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := offlineConfig(t).Embedder
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = mr.Addr()

	emb, client, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()
	assert.IsType(t, &embedding.CachedEmbedder{}, emb)

	_, err = emb.Embed(context.Background(), []string{"MS Accounting"})
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
}

func TestNewEmbedder_OpenAIWithoutKey(t *testing.T) {
	cfg := offlineConfig(t).Embedder
	cfg.Type = "openai"
	cfg.OpenAI.APIKeyEnv = "CAMPUSQA_TEST_UNSET_KEY"
	_, _, err := NewEmbedder(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewScorer(t *testing.T) {
	cfg := offlineConfig(t).Reranker
	cfg.Type = "crossencoder"
	assert.IsType(t, &crossencoder.Client{}, NewScorer(cfg))
}

func TestPaths(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.DataDir = "data"
	cfg.Crawler.SaveDocuments = true
	assert.Equal(t, filepath.Join("data", "tagged_pages.json"), TaggedPath(cfg))
	assert.Equal(t, filepath.Join("data", "chunks.json"), ChunksPath(cfg))
	assert.Equal(t, filepath.Join("data", "documents"), CrawlOptions(cfg).DocumentDir)
}
