// Package indexer embeds passages with one model and writes them to a
// vector store collection.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusqa/internal/domain"
	"campusqa/internal/logger"
	"campusqa/internal/vectorstore"
)

// DefaultBatchSize bounds the texts sent to the embedder per call.
const DefaultBatchSize = 64

type Indexer struct {
	embedder   domain.Embedder
	store      domain.VectorStore
	collection string
	batchSize  int
}

func New(embedder domain.Embedder, store domain.VectorStore, collection string) *Indexer {
	return &Indexer{embedder: embedder, store: store, collection: collection, batchSize: DefaultBatchSize}
}

// WithBatchSize overrides DefaultBatchSize.
func (ix *Indexer) WithBatchSize(n int) *Indexer {
	if n > 0 {
		ix.batchSize = n
	}
	return ix
}

// Index embeds every passage and upserts the whole batch. Nothing is written
// unless every passage is valid and every embedding call succeeds.
func (ix *Indexer) Index(ctx context.Context, passages []domain.Passage) (int, error) {
	return ix.write(ctx, passages, false)
}

// Replace is Index for a rebuild: the collection ends up holding only these
// passages, and may switch embedding model. The old contents are dropped
// only once the new batch is embedded.
func (ix *Indexer) Replace(ctx context.Context, passages []domain.Passage) (int, error) {
	return ix.write(ctx, passages, true)
}

func (ix *Indexer) write(ctx context.Context, passages []domain.Passage, replace bool) (int, error) {
	if ix.collection == "" {
		return 0, fmt.Errorf("%w: empty collection name", domain.ErrConfiguration)
	}
	if len(passages) == 0 {
		return 0, fmt.Errorf("%w: no passages to index", domain.ErrEmptyInput)
	}
	for _, p := range passages {
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}
	if !replace {
		if err := ix.checkModel(ctx); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors := make([][]float64, 0, len(passages))
	for lo := 0; lo < len(texts); lo += ix.batchSize {
		hi := min(lo+ix.batchSize, len(texts))
		vecs, err := ix.embedder.Embed(ctx, texts[lo:hi])
		if err != nil {
			return 0, fmt.Errorf("embedding passages %d-%d: %w", lo, hi-1, err)
		}
		vectors = append(vectors, vecs...)
		logger.Debug("embedded batch", "from", lo, "to", hi, "total", len(texts))
	}

	entries := make([]domain.Entry, len(passages))
	for i, p := range passages {
		entries[i] = domain.Entry{Passage: p, Vector: vectors[i]}
	}
	model := domain.ModelInfo{Name: ix.embedder.Name(), Dimension: ix.embedder.Dimension()}
	var err error
	if replace {
		err = vectorstore.Replace(ctx, ix.store, ix.collection, model, entries)
	} else {
		err = ix.store.Upsert(ctx, ix.collection, model, entries)
	}
	if err != nil {
		return 0, fmt.Errorf("writing collection %q: %w", ix.collection, err)
	}

	logger.Info("indexed passages",
		"collection", ix.collection,
		"replaced", replace,
		"count", len(entries),
		"model", model.Name,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return len(entries), nil
}

// checkModel refuses to mix embedding models before any embedding is paid for.
func (ix *Indexer) checkModel(ctx context.Context) error {
	info, err := ix.store.Describe(ctx, ix.collection)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Count == 0 {
		return nil
	}
	return info.CheckModel(domain.ModelInfo{Name: ix.embedder.Name(), Dimension: ix.embedder.Dimension()})
}
