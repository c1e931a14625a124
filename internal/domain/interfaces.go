package domain

import "context"

// Document is one cleaned, tagged page or file ready for chunking.
type Document struct {
	SourceURL string
	Text      string
	Metadata  Metadata
}

// Chunk is a run of consecutive sentences from one document. The first
// Overlap sentences repeat the tail of the previous chunk.
type Chunk struct {
	ID        string
	SourceURL string
	Index     int
	Sentences []string
	Overlap   int
}

// Text joins the chunk's sentences with single spaces.
func (c Chunk) Text() string {
	return joinSentences(c.Sentences)
}

// Fresh returns the sentences that did not appear in the previous chunk.
func (c Chunk) Fresh() []string {
	return c.Sentences[c.Overlap:]
}

// Embedder converts text into fixed-length vectors with a single model.
type Embedder interface {
	// Name identifies the model; it is recorded alongside every collection.
	Name() string
	// Dimension reports the vector length, or 0 until the first call when the
	// backend decides it.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(doc Document) ([]Chunk, error)
}

// VectorStore persists passages with their vectors in named collections.
type VectorStore interface {
	// Upsert writes every entry or none. Existing ids are replaced in place and
	// keep their original insertion order.
	Upsert(ctx context.Context, collection string, model ModelInfo, entries []Entry) error
	// Search returns up to k passages by descending cosine similarity, ties
	// broken by insertion order.
	Search(ctx context.Context, collection string, vector []float64, k int) ([]Candidate, error)
	// Describe returns ErrNotFound for a collection that was never written.
	Describe(ctx context.Context, collection string) (CollectionInfo, error)
	Drop(ctx context.Context, collection string) error
	Close() error
}

// Replacer is implemented by stores that can swap a collection's contents
// for a new batch in one atomic step.
type Replacer interface {
	Replace(ctx context.Context, collection string, model ModelInfo, entries []Entry) error
}

// RelevanceScorer scores (query, text) pairs independently. Higher is more relevant.
type RelevanceScorer interface {
	Name() string
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// LanguageModel completes a prompt synchronously.
type LanguageModel interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
