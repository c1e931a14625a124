// Package sqlite is a single-file vector store: passages, metadata and
// vectors live in one SQLite database and search is a brute-force cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"campusqa/internal/domain"
	"campusqa/internal/vectorstore"
	"campusqa/internal/vectorstore/sqlite/migrations"
)

var (
	_ domain.VectorStore = (*Store)(nil)
	_ domain.Replacer    = (*Store)(nil)
)

// Store is a SQLite-backed domain.VectorStore.
type Store struct {
	db   *sql.DB
	path string
}

// Options controls how the database file is opened.
type Options struct {
	// MustExist refuses to create a new file. Query-time commands set it so
	// that a wrong index path is reported instead of silently creating one.
	MustExist bool
}

// Open opens or creates the store at path.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty index path", domain.ErrConfiguration)
	}
	if opts.MustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: index %s: %v", domain.ErrConfiguration, path, err)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

type collectionRow struct {
	model   domain.ModelInfo
	nextSeq int64
}

func loadCollection(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, name string) (collectionRow, error) {
	var c collectionRow
	err := q.QueryRowContext(ctx,
		"SELECT model, dimension, next_seq FROM collections WHERE name = ?", name,
	).Scan(&c.model.Name, &c.model.Dimension, &c.nextSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return c, fmt.Errorf("reading collection %q: %w", name, err)
	}
	return c, nil
}

// Upsert writes the batch in one transaction.
func (s *Store) Upsert(ctx context.Context, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim, err := vectorstore.ValidateBatch(name, model, entries)
	if err != nil {
		return err
	}
	model.Dimension = dim

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertTx(ctx, tx, name, model, entries); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace drops the collection and writes the batch in the same transaction,
// so a failed write keeps the old contents.
func (s *Store) Replace(ctx context.Context, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim, err := vectorstore.ValidateBatch(name, model, entries)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries to replace collection %q with", domain.ErrEmptyInput, name)
	}
	model.Dimension = dim

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := dropTx(ctx, tx, name); err != nil {
		return err
	}
	if err := upsertTx(ctx, tx, name, model, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertTx(ctx context.Context, tx *sql.Tx, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim := model.Dimension
	c, err := loadCollection(ctx, tx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c = collectionRow{model: model}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO collections (name, model, dimension, next_seq) VALUES (?, ?, ?, 0)",
			name, model.Name, model.Dimension,
		); err != nil {
			return fmt.Errorf("creating collection %q: %w", name, err)
		}
	case err != nil:
		return err
	default:
		info := domain.CollectionInfo{Name: name, Model: c.model}
		if err := info.CheckModel(model); err != nil {
			return err
		}
	}
	if c.model.Dimension == 0 {
		c.model.Dimension = dim
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO passages (collection, id, seq, text, source_url, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			text = excluded.text,
			source_url = excluded.source_url,
			metadata = excluded.metadata,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	seq := c.nextSeq
	for _, e := range vectorstore.Dedupe(entries) {
		md, err := encodeMetadata(e.Passage.Metadata)
		if err != nil {
			return fmt.Errorf("passage %s: %w", e.Passage.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, e.Passage.ID, seq, e.Passage.Text,
			e.Passage.SourceURL, md, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("writing passage %s: %w", e.Passage.ID, err)
		}
		seq++
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE collections SET dimension = ?, next_seq = ? WHERE name = ?",
		c.model.Dimension, seq, name,
	); err != nil {
		return fmt.Errorf("updating collection %q: %w", name, err)
	}
	return nil
}

// Search scans every vector in the collection.
func (s *Store) Search(ctx context.Context, name string, vector []float64, k int) ([]domain.Candidate, error) {
	c, err := loadCollection(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.model.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, collection dimension %d",
			domain.ErrModelMismatch, len(vector), c.model.Dimension)
	}
	if k <= 0 {
		return []domain.Candidate{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, seq, text, source_url, metadata, vector FROM passages WHERE collection = ?", name)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var (
			h      vectorstore.Hit
			mdJSON string
			blob   []byte
		)
		if err := rows.Scan(&h.Passage.ID, &h.Seq, &h.Passage.Text, &h.Passage.SourceURL, &mdJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		if h.Passage.Metadata, err = decodeMetadata(mdJSON); err != nil {
			return nil, fmt.Errorf("passage %s metadata: %w", h.Passage.ID, err)
		}
		h.Similarity = vectorstore.Cosine(decodeVector(blob), vector)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return vectorstore.Rank(hits, k), nil
}

// Describe reports the recorded model and the passage count.
func (s *Store) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	c, err := loadCollection(ctx, s.db, name)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	info := domain.CollectionInfo{Name: name, Model: c.model}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM passages WHERE collection = ?", name,
	).Scan(&info.Count); err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("counting passages: %w", err)
	}
	return info, nil
}

// Drop deletes the collection and its passages. Dropping a missing collection is a no-op.
func (s *Store) Drop(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := dropTx(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func dropTx(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM passages WHERE collection = ?", name); err != nil {
		return fmt.Errorf("deleting passages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// Collections lists collection names in sorted order.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func encodeMetadata(md domain.Metadata) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) (domain.Metadata, error) {
	md := domain.Metadata{}
	if s == "" || s == "null" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, err
	}
	return md, nil
}

// encodeVector packs a vector as little-endian float64s.
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}
