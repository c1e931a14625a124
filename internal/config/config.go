package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"campusqa/internal/domain"
)

// CrawlerConfig configures the site crawl.
type CrawlerConfig struct {
	SeedsPath         string   `yaml:"seeds_path"`
	SeedsColumn       string   `yaml:"seeds_column"`
	UserAgent         string   `yaml:"user_agent"`
	TimeoutSecs       int      `yaml:"timeout_secs"`
	DelayMillis       int      `yaml:"delay_millis"`
	SaveDocuments     bool     `yaml:"save_documents"`
	MaxDocumentBytes  int64    `yaml:"max_document_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type             string `yaml:"type"`
	ChunkSize        int    `yaml:"chunk_size"`
	OverlapSentences int    `yaml:"overlap_sentences"`
}

// OllamaEmbedderConfig holds configuration for the Ollama embedder.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// CacheConfig configures the Redis embedding cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
	Prefix   string `yaml:"prefix"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Ollama  *OllamaEmbedderConfig  `yaml:"ollama,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	Cache   *CacheConfig           `yaml:"cache,omitempty"`
}

// SQLiteConfig locates the on-disk index.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MilvusConfig contains connection details for a Milvus vector store.
type MilvusConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	SQLite     *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
	Milvus     *MilvusConfig `yaml:"milvus,omitempty"`
}

// CrossEncoderConfig points at a text-embeddings-inference rerank endpoint.
type CrossEncoderConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RerankerConfig selects the relevance scorer.
type RerankerConfig struct {
	Type         string              `yaml:"type"`
	CrossEncoder *CrossEncoderConfig `yaml:"cross_encoder,omitempty"`
}

// LLMConfig configures the answering model.
type LLMConfig struct {
	Type           string  `yaml:"type"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	PromptTemplate string  `yaml:"prompt_template,omitempty"`
}

// RetrievalConfig holds the two-stage retrieval sizes.
type RetrievalConfig struct {
	KRetrieve        int `yaml:"k_retrieve"`
	KRerank          int `yaml:"k_rerank"`
	ExcerptSentences int `yaml:"excerpt_sentences"`
}

// ServerConfig configures the HTTP chat API.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	Mode               string `yaml:"mode"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir     string            `yaml:"data_dir"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := presetConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./campusqa.yaml first, then ~/.config/campusqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/campusqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "campusqa.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// LoadEnv reads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first setting that would make the pipeline unusable.
func (c *AppConfig) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{domain.ErrConfiguration}, args...)...)
	}
	if c.Chunker.Type != "sentence" {
		return bad("unknown chunker type %q", c.Chunker.Type)
	}
	if c.Chunker.ChunkSize <= 0 {
		return bad("chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.OverlapSentences < 0 {
		return bad("overlap_sentences must not be negative, got %d", c.Chunker.OverlapSentences)
	}
	switch c.Embedder.Type {
	case "ollama", "openai", "hashing":
	default:
		return bad("unknown embedder type %q", c.Embedder.Type)
	}
	if strings.TrimSpace(c.VectorStore.Collection) == "" {
		return bad("vector_store.collection is empty")
	}
	switch c.VectorStore.Type {
	case "sqlite":
		if strings.TrimSpace(c.VectorStore.SQLite.Path) == "" {
			return bad("vector_store.sqlite.path is empty")
		}
	case "memory", "qdrant", "milvus":
	default:
		return bad("unknown vector store type %q", c.VectorStore.Type)
	}
	switch c.Reranker.Type {
	case "crossencoder", "lexical":
	default:
		return bad("unknown reranker type %q", c.Reranker.Type)
	}
	if c.LLM.Type != "ollama" {
		return bad("unknown llm type %q", c.LLM.Type)
	}
	if c.Retrieval.KRetrieve < 0 || c.Retrieval.KRerank < 0 {
		return bad("retrieval k values must not be negative")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "campusqa", "config.yaml"), nil
}

// presetConfig holds the defaults for fields where zero is a valid setting.
// Files are decoded on top of it, so only an absent key keeps the default.
func presetConfig() AppConfig {
	return AppConfig{
		Chunker:   ChunkerConfig{OverlapSentences: 2},
		LLM:       LLMConfig{Temperature: 0.1},
		Retrieval: RetrievalConfig{KRetrieve: 10, KRerank: 5},
	}
}

func defaultConfig() *AppConfig {
	cfg := presetConfig()
	cfg.DataDir = "data"
	cfg.Chunker.Type = "sentence"
	cfg.Chunker.ChunkSize = 800
	cfg.Embedder.Type = "ollama"
	cfg.VectorStore = VectorStoreConfig{Type: "sqlite", Collection: "pages"}
	cfg.Reranker.Type = "crossencoder"
	cfg.LLM.Type = "ollama"
	cfg.LLM.Model = "mistral:instruct"
	applyConfigDefaults(&cfg)
	return &cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	c := &cfg.Crawler
	if c.SeedsColumn == "" {
		c.SeedsColumn = "URL"
	}
	if c.UserAgent == "" {
		c.UserAgent = "campusqa-crawler/1.0"
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.MaxDocumentBytes == 0 {
		c.MaxDocumentBytes = 50 << 20
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".pdf", ".docx", ".pptx"}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 800
	}

	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "ollama"
	}
	if e.Ollama == nil {
		e.Ollama = &OllamaEmbedderConfig{}
	}
	if e.Ollama.BaseURL == "" {
		e.Ollama.BaseURL = "http://localhost:11434"
	}
	if e.Ollama.Model == "" {
		e.Ollama.Model = "nomic-embed-text"
	}
	if e.Ollama.TimeoutSecs == 0 {
		e.Ollama.TimeoutSecs = 60
	}
	if e.OpenAI == nil {
		e.OpenAI = &OpenAIEmbedderConfig{}
	}
	if e.OpenAI.BaseURL == "" {
		e.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if e.OpenAI.APIKeyEnv == "" {
		e.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if e.OpenAI.Model == "" {
		e.OpenAI.Model = "text-embedding-3-small"
	}
	if e.OpenAI.TimeoutSecs == 0 {
		e.OpenAI.TimeoutSecs = 30
	}
	if e.OpenAI.BatchSize == 0 {
		e.OpenAI.BatchSize = 32
	}
	if e.Hashing == nil {
		e.Hashing = &HashingEmbedderConfig{}
	}
	if e.Hashing.Dimension == 0 {
		e.Hashing.Dimension = 512
	}
	if e.Cache == nil {
		e.Cache = &CacheConfig{}
	}
	if e.Cache.Addr == "" {
		e.Cache.Addr = "localhost:6379"
	}
	if e.Cache.TTLHours == 0 {
		e.Cache.TTLHours = 24 * 7
	}
	if e.Cache.Prefix == "" {
		e.Cache.Prefix = "campusqa:emb:"
	}

	v := &cfg.VectorStore
	if v.Type == "" {
		v.Type = "sqlite"
	}
	if v.Collection == "" {
		v.Collection = "pages"
	}
	if v.SQLite == nil {
		v.SQLite = &SQLiteConfig{}
	}
	if v.SQLite.Path == "" {
		v.SQLite.Path = filepath.Join(cfg.DataDir, "index", v.Collection+".db")
	}
	if v.Qdrant == nil {
		v.Qdrant = &QdrantConfig{}
	}
	if v.Qdrant.URL == "" {
		v.Qdrant.URL = "http://localhost:6333"
	}
	if v.Qdrant.TimeoutSecs == 0 {
		v.Qdrant.TimeoutSecs = 10
	}
	if v.Milvus == nil {
		v.Milvus = &MilvusConfig{}
	}
	if v.Milvus.Address == "" {
		v.Milvus.Address = "localhost:19530"
	}

	r := &cfg.Reranker
	if r.Type == "" {
		r.Type = "crossencoder"
	}
	if r.CrossEncoder == nil {
		r.CrossEncoder = &CrossEncoderConfig{}
	}
	if r.CrossEncoder.URL == "" {
		r.CrossEncoder.URL = "http://localhost:8081"
	}
	if r.CrossEncoder.Model == "" {
		r.CrossEncoder.Model = "BAAI/bge-reranker-base"
	}
	if r.CrossEncoder.TimeoutSecs == 0 {
		r.CrossEncoder.TimeoutSecs = 30
	}

	l := &cfg.LLM
	if l.Type == "" {
		l.Type = "ollama"
	}
	if l.BaseURL == "" {
		l.BaseURL = "http://localhost:11434"
	}
	if l.Model == "" {
		l.Model = "mistral:instruct"
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = 120
	}

	if cfg.Retrieval.ExcerptSentences == 0 {
		cfg.Retrieval.ExcerptSentences = 2
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 180
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("CAMPUSQA_OLLAMA_URL"); v != "" {
		cfg.Embedder.Ollama.BaseURL = v
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CAMPUSQA_RERANKER_URL"); v != "" {
		cfg.Reranker.CrossEncoder.URL = v
	}
	if v := os.Getenv("CAMPUSQA_INDEX_PATH"); v != "" {
		cfg.VectorStore.SQLite.Path = v
	}
	if v := os.Getenv("CAMPUSQA_REDIS_ADDR"); v != "" {
		cfg.Embedder.Cache.Addr = v
		cfg.Embedder.Cache.Enabled = true
	}
	if v := os.Getenv("CAMPUSQA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("MILVUS_PASSWORD"); v != "" {
		cfg.VectorStore.Milvus.Password = v
	}
}
