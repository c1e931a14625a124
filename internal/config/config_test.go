package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunker.ChunkSize)
	assert.Equal(t, 2, cfg.Chunker.OverlapSentences)
	assert.Equal(t, 10, cfg.Retrieval.KRetrieve)
	assert.Equal(t, 5, cfg.Retrieval.KRerank)
	assert.Equal(t, "pages", cfg.VectorStore.Collection)
	assert.Equal(t, filepath.Join("data", "index", "pages.db"), cfg.VectorStore.SQLite.Path)
	assert.Equal(t, "mistral:instruct", cfg.LLM.Model)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "BAAI/bge-reranker-base", cfg.Reranker.CrossEncoder.Model)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileValuesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/campusqa
chunker:
  chunk_size: 400
embedder:
  type: hashing
vector_store:
  collection: jindal
reranker:
  type: lexical
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Chunker.ChunkSize)
	assert.Equal(t, "sentence", cfg.Chunker.Type)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 512, cfg.Embedder.Hashing.Dimension)
	assert.Equal(t, "/srv/campusqa/index/jindal.db", cfg.VectorStore.SQLite.Path)
	assert.Equal(t, "lexical", cfg.Reranker.Type)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AbsentKeysKeepZeroValidDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: mistral:instruct\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.Chunker.OverlapSentences)
	assert.Equal(t, 10, cfg.Retrieval.KRetrieve)
	assert.Equal(t, 5, cfg.Retrieval.KRerank)
}

func TestLoad_ExplicitZeroIsHonoured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  overlap_sentences: 0
llm:
  temperature: 0
retrieval:
  k_retrieve: 0
  k_rerank: 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Zero(t, cfg.Chunker.OverlapSentences)
	assert.Zero(t, cfg.Retrieval.KRetrieve)
	assert.Zero(t, cfg.Retrieval.KRerank)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unterminated"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CAMPUSQA_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("CAMPUSQA_INDEX_PATH", "/tmp/idx.db")
	t.Setenv("CAMPUSQA_REDIS_ADDR", "redis:6379")
	t.Setenv("QDRANT_API_KEY", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Embedder.Ollama.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "/tmp/idx.db", cfg.VectorStore.SQLite.Path)
	assert.True(t, cfg.Embedder.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Embedder.Cache.Addr)
	assert.Equal(t, "secret", cfg.VectorStore.Qdrant.APIKey)
}

func TestLoadEnv_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CAMPUSQA_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CAMPUSQA_TEST_DOTENV") })

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("CAMPUSQA_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty collection", func(c *AppConfig) { c.VectorStore.Collection = " " }},
		{"empty sqlite path", func(c *AppConfig) { c.VectorStore.SQLite.Path = "" }},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "faiss" }},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "word2vec" }},
		{"unknown reranker", func(c *AppConfig) { c.Reranker.Type = "colbert" }},
		{"zero chunk size", func(c *AppConfig) { c.Chunker.ChunkSize = 0 }},
		{"negative overlap", func(c *AppConfig) { c.Chunker.OverlapSentences = -1 }},
		{"negative k", func(c *AppConfig) { c.Retrieval.KRerank = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.KRerank = 3

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Retrieval.KRerank)
	assert.Equal(t, cfg.VectorStore.SQLite.Path, loaded.VectorStore.SQLite.Path)
}
