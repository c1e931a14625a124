// Package milvus stores collections in a Milvus server through client/v2.
package milvus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"campusqa/internal/domain"
	"campusqa/internal/vectorstore"
)

const backend = "milvus"

// Field names of every collection.
const (
	fieldID        = "id"
	fieldVector    = "embedding"
	fieldText      = "text"
	fieldSourceURL = "source_url"
	fieldMetadata  = "metadata"
	fieldSeq       = "seq"
)

var outputFields = []string{fieldID, fieldText, fieldSourceURL, fieldMetadata, fieldSeq}

var _ domain.VectorStore = (*Store)(nil)

type Config struct {
	Address  string
	Username string
	Password string
	DBName   string
	Timeout  time.Duration
}

// Store is a domain.VectorStore backed by Milvus. The embedding model is
// recorded in the collection description.
type Store struct {
	client *milvusclient.Client
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, domain.Unavailable(backend, fmt.Errorf("connecting to %s: %w", cfg.Address, err))
	}
	return &Store{client: c}, nil
}

func (s *Store) Close() error {
	return s.client.Close(context.Background())
}

type description struct {
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
}

func encodeDescription(m domain.ModelInfo) string {
	b, _ := json.Marshal(description{EmbeddingModel: m.Name, Dimension: m.Dimension})
	return string(b)
}

func decodeDescription(s string) domain.ModelInfo {
	var d description
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return domain.ModelInfo{}
	}
	return domain.ModelInfo{Name: d.EmbeddingModel, Dimension: d.Dimension}
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, domain.Unavailable(backend, err)
	}
	return ok, nil
}

func (s *Store) create(ctx context.Context, name string, model domain.ModelInfo) error {
	schema := entity.NewSchema().
		WithName(name).
		WithDescription(encodeDescription(model)).
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(1024).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(fieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(model.Dimension))).
		WithField(entity.NewField().
			WithName(fieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(65535)).
		WithField(entity.NewField().
			WithName(fieldSourceURL).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(2048)).
		WithField(entity.NewField().
			WithName(fieldMetadata).
			WithDataType(entity.FieldTypeJSON)).
		WithField(entity.NewField().
			WithName(fieldSeq).
			WithDataType(entity.FieldTypeInt64))

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return domain.Unavailable(backend, fmt.Errorf("creating collection %q: %w", name, err))
	}
	idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
	task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, fieldVector, idx))
	if err != nil {
		return domain.Unavailable(backend, fmt.Errorf("creating index: %w", err))
	}
	if err := task.Await(ctx); err != nil {
		return domain.Unavailable(backend, fmt.Errorf("waiting for index: %w", err))
	}
	return s.load(ctx, name)
}

func (s *Store) load(ctx context.Context, name string) error {
	task, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return domain.Unavailable(backend, fmt.Errorf("loading collection %q: %w", name, err))
	}
	if err := task.Await(ctx); err != nil {
		return domain.Unavailable(backend, fmt.Errorf("waiting for collection load: %w", err))
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, name string, model domain.ModelInfo, entries []domain.Entry) error {
	dim, err := vectorstore.ValidateBatch(name, model, entries)
	if err != nil {
		return err
	}
	model.Dimension = dim

	info, err := s.Describe(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if dim == 0 {
			return nil
		}
		if err := s.create(ctx, name, model); err != nil {
			return err
		}
		info = domain.CollectionInfo{Name: name, Model: model}
	case err != nil:
		return err
	default:
		if err := info.CheckModel(model); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}

	entries = vectorstore.Dedupe(entries)
	existing, err := s.seqs(ctx, name, entries)
	if err != nil {
		return err
	}
	cols, err := buildColumns(entries, dim, existing, int64(info.Count))
	if err != nil {
		return err
	}
	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(name, cols...)); err != nil {
		return domain.Unavailable(backend, fmt.Errorf("upserting into %q: %w", name, err))
	}
	task, err := s.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return domain.Unavailable(backend, fmt.Errorf("flushing %q: %w", name, err))
	}
	if err := task.Await(ctx); err != nil {
		return domain.Unavailable(backend, fmt.Errorf("waiting for flush: %w", err))
	}
	return nil
}

// buildColumns lays the batch out column-wise. Ids found in existing keep
// their sequence number; new ids are numbered from next.
func buildColumns(entries []domain.Entry, dim int, existing map[string]int64, next int64) ([]column.Column, error) {
	n := len(entries)
	ids := make([]string, n)
	vecs := make([][]float32, n)
	texts := make([]string, n)
	urls := make([]string, n)
	mds := make([][]byte, n)
	seqs := make([]int64, n)
	for i, e := range entries {
		ids[i] = e.Passage.ID
		vecs[i] = toFloat32(e.Vector)
		texts[i] = e.Passage.Text
		urls[i] = e.Passage.SourceURL
		md := e.Passage.Metadata
		if md == nil {
			md = domain.Metadata{}
		}
		b, err := json.Marshal(md)
		if err != nil {
			return nil, fmt.Errorf("passage %s metadata: %w", e.Passage.ID, err)
		}
		mds[i] = b
		seq, ok := existing[e.Passage.ID]
		if !ok {
			seq = next
			next++
		}
		seqs[i] = seq
	}
	return []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldVector, dim, vecs),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnVarChar(fieldSourceURL, urls),
		column.NewColumnJSONBytes(fieldMetadata, mds),
		column.NewColumnInt64(fieldSeq, seqs),
	}, nil
}

// idFilter builds an `id in [...]` expression.
func idFilter(entries []domain.Entry) string {
	quoted := make([]string, len(entries))
	for i, e := range entries {
		quoted[i] = strconv.Quote(e.Passage.ID)
	}
	return fieldID + " in [" + strings.Join(quoted, ", ") + "]"
}

func (s *Store) seqs(ctx context.Context, name string, entries []domain.Entry) (map[string]int64, error) {
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(name).
		WithFilter(idFilter(entries)).
		WithOutputFields(fieldID, fieldSeq))
	if err != nil {
		return nil, domain.Unavailable(backend, fmt.Errorf("reading existing ids: %w", err))
	}
	return decodeSeqs(rs.GetColumn(fieldID), rs.GetColumn(fieldSeq)), nil
}

// decodeSeqs pairs a query's id column with its seq column.
func decodeSeqs(ids, seqs column.Column) map[string]int64 {
	out := map[string]int64{}
	idCol, ok1 := ids.(*column.ColumnVarChar)
	seqCol, ok2 := seqs.(*column.ColumnInt64)
	if !ok1 || !ok2 {
		return out
	}
	for i, id := range idCol.Data() {
		if i < len(seqCol.Data()) {
			out[id] = seqCol.Data()[i]
		}
	}
	return out
}

func (s *Store) Search(ctx context.Context, name string, vector []float64, k int) ([]domain.Candidate, error) {
	info, err := s.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Model.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, collection dimension %d",
			domain.ErrModelMismatch, len(vector), info.Model.Dimension)
	}
	if k <= 0 || info.Count == 0 {
		return []domain.Candidate{}, nil
	}
	if err := s.load(ctx, name); err != nil {
		return nil, err
	}

	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		k,
		[]entity.Vector{entity.FloatVector(toFloat32(vector))},
	).WithANNSField(fieldVector).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, domain.Unavailable(backend, fmt.Errorf("searching %q: %w", name, err))
	}
	if len(results) == 0 {
		return []domain.Candidate{}, nil
	}

	hits, err := decodeHits(results[0].Fields, results[0].Scores)
	if err != nil {
		return nil, err
	}
	return vectorstore.Rank(hits, k), nil
}

// decodeHits turns the output columns of one search result into hits, one
// per score.
func decodeHits(fields []column.Column, scores []float32) ([]vectorstore.Hit, error) {
	hits := make([]vectorstore.Hit, len(scores))
	for i, sc := range scores {
		hits[i].Similarity = float64(sc)
	}
	for _, field := range fields {
		if field.Len() < len(hits) {
			return nil, domain.Unavailable(backend, fmt.Errorf("column %s has %d rows for %d hits", field.Name(), field.Len(), len(hits)))
		}
		switch col := field.(type) {
		case *column.ColumnVarChar:
			for i := range hits {
				switch col.Name() {
				case fieldID:
					hits[i].Passage.ID = col.Data()[i]
				case fieldText:
					hits[i].Passage.Text = col.Data()[i]
				case fieldSourceURL:
					hits[i].Passage.SourceURL = col.Data()[i]
				}
			}
		case *column.ColumnInt64:
			if col.Name() == fieldSeq {
				for i := range hits {
					hits[i].Seq = col.Data()[i]
				}
			}
		case *column.ColumnJSONBytes:
			for i := range hits {
				md := domain.Metadata{}
				if err := json.Unmarshal(col.Data()[i], &md); err != nil {
					return nil, fmt.Errorf("passage %s metadata: %w", hits[i].Passage.ID, err)
				}
				hits[i].Passage.Metadata = md
			}
		}
	}
	return hits, nil
}

// Describe reads the model from the collection description and counts rows
// with a count(*) query.
func (s *Store) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	if !ok {
		return domain.CollectionInfo{}, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	coll, err := s.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return domain.CollectionInfo{}, domain.Unavailable(backend, err)
	}
	info := domain.CollectionInfo{Name: name}
	if coll.Schema != nil {
		info.Model = decodeDescription(coll.Schema.Description)
	}

	if err := s.load(ctx, name); err != nil {
		return domain.CollectionInfo{}, err
	}
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(name).WithOutputFields("count(*)"))
	if err != nil {
		return domain.CollectionInfo{}, domain.Unavailable(backend, fmt.Errorf("counting %q: %w", name, err))
	}
	info.Count = decodeCount(rs.GetColumn("count(*)"))
	return info, nil
}

func decodeCount(col column.Column) int {
	if c, ok := col.(*column.ColumnInt64); ok && len(c.Data()) > 0 {
		return int(c.Data()[0])
	}
	return 0
}

func (s *Store) Drop(ctx context.Context, name string) error {
	ok, err := s.exists(ctx, name)
	if err != nil || !ok {
		return err
	}
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return domain.Unavailable(backend, fmt.Errorf("dropping %q: %w", name, err))
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
