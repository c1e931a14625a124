package chunker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"campusqa/internal/domain"
)

// Record is one entry of a chunk file.
type Record struct {
	SourceURL   string   `json:"source_url"`
	Sitemap     string   `json:"sitemap"`
	ProgramType string   `json:"program_type"`
	Slugs       []string `json:"slugs"`
	ChunkText   string   `json:"chunk_text"`
	ChunkID     string   `json:"chunk_id"`
}

// ToPassage converts a record into an indexable passage. Fields that are not
// scalars (slugs) do not pass the metadata boundary; their keys are returned.
func (r Record) ToPassage() (domain.Passage, []string) {
	md, rejected := domain.MetadataFrom(map[string]any{
		"source_url":   r.SourceURL,
		"sitemap":      r.Sitemap,
		"program_type": r.ProgramType,
		"chunk_id":     r.ChunkID,
		"slugs":        r.Slugs,
	})
	return domain.Passage{
		ID:        r.ChunkID,
		Text:      r.ChunkText,
		SourceURL: r.SourceURL,
		Metadata:  md,
	}, rejected
}

// ReadChunkFile loads a chunk file.
func ReadChunkFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidInput, path, err)
	}
	return recs, nil
}

// WriteChunkFile writes records as an indented JSON array.
func WriteChunkFile(path string, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
