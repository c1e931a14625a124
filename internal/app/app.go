// Package app builds the process-wide resources (models, index, chunker)
// from configuration, once, and hands them to the pipeline.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"campusqa/internal/chunker"
	"campusqa/internal/config"
	"campusqa/internal/crawler"
	"campusqa/internal/domain"
	"campusqa/internal/embedding"
	"campusqa/internal/embedding/hashing"
	"campusqa/internal/embedding/ollama"
	"campusqa/internal/embedding/openai"
	llmollama "campusqa/internal/llm/ollama"
	"campusqa/internal/logger"
	"campusqa/internal/rerank/crossencoder"
	"campusqa/internal/rerank/lexical"
	"campusqa/internal/service"
	"campusqa/internal/vectorstore/memory"
	"campusqa/internal/vectorstore/milvus"
	"campusqa/internal/vectorstore/qdrant"
	"campusqa/internal/vectorstore/sqlite"
)

// Need selects which resources a command opens.
type Need uint8

const (
	NeedChunker Need = 1 << iota
	// NeedIndex opens the embedder and a writable store.
	NeedIndex
	// NeedQuery opens the embedder, an existing store, the reranker and the LLM.
	NeedQuery
)

// File names under the data directory.
const (
	TaggedFile = "tagged_pages.json"
	ChunksFile = "chunks.json"
)

// Resources are built once per process and shared by every request.
type Resources struct {
	Config   *config.AppConfig
	Chunker  domain.Chunker
	Embedder domain.Embedder
	Store    domain.VectorStore
	Scorer   domain.RelevanceScorer
	LLM      domain.LanguageModel

	redis *goredis.Client
}

// Open builds the resources named by need. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.AppConfig, need Need) (res *Resources, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	res = &Resources{Config: cfg}
	defer func() {
		if err != nil {
			res.Close()
			res = nil
		}
	}()

	if need&NeedChunker != 0 {
		if res.Chunker, err = NewChunker(cfg.Chunker); err != nil {
			return res, err
		}
	}
	if need&(NeedIndex|NeedQuery) != 0 {
		if res.Embedder, res.redis, err = NewEmbedder(ctx, cfg.Embedder); err != nil {
			return res, err
		}
		if res.Store, err = NewStore(ctx, cfg.VectorStore, need&NeedIndex == 0); err != nil {
			return res, err
		}
	}
	if need&NeedQuery != 0 {
		res.Scorer = NewScorer(cfg.Reranker)
		res.LLM = NewLLM(cfg.LLM)
	}
	logger.Debug("resources ready",
		"embedder", nameOf(res.Embedder),
		"store", cfg.VectorStore.Type,
		"collection", cfg.VectorStore.Collection,
		"reranker", nameOf(res.Scorer),
		"llm", nameOf(res.LLM))
	return res, nil
}

func nameOf(x interface{ Name() string }) string {
	if x == nil {
		return ""
	}
	return x.Name()
}

// Pipeline wires the opened resources into a service.Pipeline.
func (r *Resources) Pipeline() (*service.Pipeline, error) {
	return service.New(service.Deps{
		Chunker:          r.Chunker,
		Embedder:         r.Embedder,
		Store:            r.Store,
		Scorer:           r.Scorer,
		LLM:              r.LLM,
		Collection:       r.Config.VectorStore.Collection,
		KRetrieve:        r.Config.Retrieval.KRetrieve,
		KRerank:          r.Config.Retrieval.KRerank,
		ExcerptSentences: r.Config.Retrieval.ExcerptSentences,
		PromptTemplate:   r.Config.LLM.PromptTemplate,
	})
}

func (r *Resources) Close() error {
	var firstErr error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewChunker builds the sentence chunker with the punkt tokenizer.
func NewChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	splitter, err := chunker.NewPunktSplitter()
	if err != nil {
		return nil, fmt.Errorf("%w: sentence tokenizer: %v", domain.ErrConfiguration, err)
	}
	return chunker.NewSentenceChunker(cfg.ChunkSize, cfg.OverlapSentences, splitter), nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// NewEmbedder builds the configured embedder, wrapped in the Redis cache when
// enabled. The returned client is nil without a cache.
func NewEmbedder(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, *goredis.Client, error) {
	var inner domain.Embedder
	switch cfg.Type {
	case "ollama":
		inner = ollama.NewEmbedder(ollama.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: seconds(cfg.Ollama.TimeoutSecs),
		})
	case "openai":
		c, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   seconds(cfg.OpenAI.TimeoutSecs),
			BatchSize: cfg.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, nil, err
		}
		inner = c
	case "hashing":
		inner = hashing.NewEmbedder(cfg.Hashing.Dimension)
	default:
		return nil, nil, fmt.Errorf("%w: unknown embedder type %q", domain.ErrConfiguration, cfg.Type)
	}

	if cfg.Cache == nil || !cfg.Cache.Enabled {
		return inner, nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("embedding cache unreachable, continuing without hits", "addr", cfg.Cache.Addr, "error", err)
	}
	cached := embedding.NewCachedEmbedder(inner, client, embedding.CacheConfig{
		TTL:       time.Duration(cfg.Cache.TTLHours) * time.Hour,
		KeyPrefix: cfg.Cache.Prefix,
	})
	return cached, client, nil
}

// NewStore opens the configured vector store. With mustExist a missing
// sqlite file is a configuration error instead of a new empty index.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, mustExist bool) (domain.VectorStore, error) {
	switch cfg.Type {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path, sqlite.Options{MustExist: mustExist})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: seconds(cfg.Qdrant.TimeoutSecs),
		}), nil
	case "milvus":
		s, err := milvus.New(ctx, milvus.Config{
			Address:  cfg.Milvus.Address,
			Username: cfg.Milvus.Username,
			Password: cfg.Milvus.Password,
			DBName:   cfg.Milvus.DBName,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", domain.ErrConfiguration, cfg.Type)
	}
}

// NewScorer builds the reranker's relevance scorer.
func NewScorer(cfg config.RerankerConfig) domain.RelevanceScorer {
	if cfg.Type == "lexical" {
		return lexical.NewScorer()
	}
	return crossencoder.NewClient(crossencoder.Config{
		BaseURL: cfg.CrossEncoder.URL,
		Model:   cfg.CrossEncoder.Model,
		Timeout: seconds(cfg.CrossEncoder.TimeoutSecs),
	})
}

// NewLLM builds the answering model.
func NewLLM(cfg config.LLMConfig) domain.LanguageModel {
	return llmollama.New(llmollama.Config{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     seconds(cfg.TimeoutSecs),
	})
}

// CrawlOptions maps crawler settings; raw files go under <data_dir>/documents when saving is on.
func CrawlOptions(cfg *config.AppConfig) crawler.Options {
	opts := crawler.Options{
		UserAgent:        cfg.Crawler.UserAgent,
		Timeout:          seconds(cfg.Crawler.TimeoutSecs),
		Delay:            time.Duration(cfg.Crawler.DelayMillis) * time.Millisecond,
		Extensions:       cfg.Crawler.AllowedExtensions,
		MaxDocumentBytes: cfg.Crawler.MaxDocumentBytes,
	}
	if cfg.Crawler.SaveDocuments {
		opts.DocumentDir = filepath.Join(cfg.DataDir, "documents")
	}
	return opts
}

// TaggedPath is where tagged records are written.
func TaggedPath(cfg *config.AppConfig) string { return filepath.Join(cfg.DataDir, TaggedFile) }

// ChunksPath is where chunk records are written.
func ChunksPath(cfg *config.AppConfig) string { return filepath.Join(cfg.DataDir, ChunksFile) }
