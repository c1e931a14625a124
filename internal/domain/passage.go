package domain

import (
	"fmt"
	"strings"
)

// Passage is the unit of retrieval. It is immutable once built.
type Passage struct {
	ID        string
	Text      string
	SourceURL string
	Metadata  Metadata
}

// Validate checks the fields every store relies on.
func (p Passage) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: passage without id", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: passage %s has no text", ErrEmptyInput, p.ID)
	}
	for k, v := range p.Metadata {
		if !v.IsValid() {
			return fmt.Errorf("%w: passage %s metadata %q is not a scalar", ErrInvalidInput, p.ID, k)
		}
	}
	return nil
}

// Entry pairs a passage with its embedding.
type Entry struct {
	Passage Passage
	Vector  []float64
}

// Similarity is a cosine similarity from the vector index.
type Similarity float64

// Relevance is a cross-encoder score. It is not comparable with Similarity.
type Relevance float64

// Candidate is a retrieval hit.
type Candidate struct {
	Passage    Passage
	Similarity Similarity
}

// Ranked is a reranked passage.
type Ranked struct {
	Passage   Passage
	Relevance Relevance
}

// ModelInfo identifies the embedding model that produced a collection's vectors.
type ModelInfo struct {
	Name      string
	Dimension int
}

// CollectionInfo describes a stored collection.
type CollectionInfo struct {
	Name  string
	Model ModelInfo
	Count int
}

// CheckModel fails with ErrModelMismatch when want differs from the model
// recorded for the collection. A zero Dimension on either side is not compared.
func (c CollectionInfo) CheckModel(want ModelInfo) error {
	if c.Model.Name != want.Name {
		return fmt.Errorf("%w: collection %q was built with %q, loaded model is %q",
			ErrModelMismatch, c.Name, c.Model.Name, want.Name)
	}
	if c.Model.Dimension != 0 && want.Dimension != 0 && c.Model.Dimension != want.Dimension {
		return fmt.Errorf("%w: collection %q has dimension %d, loaded model produces %d",
			ErrModelMismatch, c.Name, c.Model.Dimension, want.Dimension)
	}
	return nil
}

func joinSentences(s []string) string {
	return strings.Join(s, " ")
}
