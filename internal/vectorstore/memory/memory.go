package memory

import (
	"context"
	"fmt"
	"sync"

	"campusqa/internal/domain"
	"campusqa/internal/vectorstore"
)

var (
	_ domain.VectorStore = (*Storage)(nil)
	_ domain.Replacer    = (*Storage)(nil)
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type row struct {
	passage domain.Passage
	vector  []float64
	seq     int64
}

type collection struct {
	model   domain.ModelInfo
	rows    []row
	byID    map[string]int
	nextSeq int64
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) Upsert(_ context.Context, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim, err := vectorstore.ValidateBatch(name, model, entries)
	if err != nil {
		return err
	}
	model.Dimension = dim

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if ok {
		info := domain.CollectionInfo{Name: name, Model: c.model}
		if err := info.CheckModel(model); err != nil {
			return err
		}
	} else {
		c = &collection{model: model, byID: make(map[string]int)}
		s.collections[name] = c
	}
	if c.model.Dimension == 0 {
		c.model.Dimension = dim
	}
	c.put(entries)
	return nil
}

// Replace swaps the collection for a new one holding only entries.
func (s *Storage) Replace(_ context.Context, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim, err := vectorstore.ValidateBatch(name, model, entries)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries to replace collection %q with", domain.ErrEmptyInput, name)
	}
	model.Dimension = dim

	c := &collection{model: model, byID: make(map[string]int)}
	c.put(entries)
	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
	return nil
}

func (c *collection) put(entries []domain.Entry) {
	for _, e := range vectorstore.Dedupe(entries) {
		vec := append([]float64(nil), e.Vector...)
		if i, ok := c.byID[e.Passage.ID]; ok {
			c.rows[i].passage = e.Passage
			c.rows[i].vector = vec
			continue
		}
		c.byID[e.Passage.ID] = len(c.rows)
		c.rows = append(c.rows, row{passage: e.Passage, vector: vec, seq: c.nextSeq})
		c.nextSeq++
	}
}

func (s *Storage) Search(_ context.Context, name string, vector []float64, k int) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if len(vector) != c.model.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, collection dimension %d",
			domain.ErrModelMismatch, len(vector), c.model.Dimension)
	}
	if k <= 0 {
		return []domain.Candidate{}, nil
	}
	hits := make([]vectorstore.Hit, len(c.rows))
	for i, r := range c.rows {
		hits[i] = vectorstore.Hit{Passage: r.passage, Similarity: vectorstore.Cosine(r.vector, vector), Seq: r.seq}
	}
	return vectorstore.Rank(hits, k), nil
}

func (s *Storage) Describe(_ context.Context, name string) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.CollectionInfo{}, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	return domain.CollectionInfo{Name: name, Model: c.model, Count: len(c.rows)}, nil
}

func (s *Storage) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Storage) Close() error { return nil }
