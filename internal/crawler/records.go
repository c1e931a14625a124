package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"campusqa/internal/domain"
)

// PageRecord is one crawled web page.
type PageRecord struct {
	URL           string `json:"url"`
	ExtractedText string `json:"extracted_text"`
}

// DocumentRecord is one linked file downloaded from a page.
type DocumentRecord struct {
	URL           string `json:"url"`
	FileName      string `json:"file_name"`
	ExtractedText string `json:"extracted_text"`
}

const (
	PagesFile     = "pages.json"
	DocumentsFile = "documents.json"
)

// ReadJSON decodes a JSON array file into out.
func ReadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidInput, path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON without HTML escaping.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Save writes pages.json and documents.json into dir.
func (r *Result) Save(dir string) error {
	pages, docs := r.Pages, r.Documents
	if pages == nil {
		pages = []PageRecord{}
	}
	if docs == nil {
		docs = []DocumentRecord{}
	}
	if err := WriteJSON(filepath.Join(dir, PagesFile), pages); err != nil {
		return err
	}
	return WriteJSON(filepath.Join(dir, DocumentsFile), docs)
}

// LoadResult reads the files written by Save. A missing documents.json is
// treated as no documents.
func LoadResult(dir string) (*Result, error) {
	var r Result
	if err := ReadJSON(filepath.Join(dir, PagesFile), &r.Pages); err != nil {
		return nil, err
	}
	err := ReadJSON(filepath.Join(dir, DocumentsFile), &r.Documents)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &r, nil
}
