// Package service wires the ingestion and question-answering stages into
// one pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campusqa/internal/chunker"
	"campusqa/internal/composer"
	"campusqa/internal/crawler"
	"campusqa/internal/domain"
	"campusqa/internal/indexer"
	"campusqa/internal/logger"
	"campusqa/internal/rerank"
	"campusqa/internal/retriever"
	"campusqa/internal/summarizer"
	"campusqa/internal/tagging"
)

// Defaults callers use for retrieval depth; ExcerptSentences also applies
// when Deps leaves it at zero. A zero k is honoured and retrieves nothing.
const (
	DefaultKRetrieve        = 10
	DefaultKRerank          = 5
	DefaultExcerptSentences = 2
)

// Deps are the long-lived handles a Pipeline runs on. They are built once
// per process and shared by every request.
type Deps struct {
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Scorer     domain.RelevanceScorer
	LLM        domain.LanguageModel
	Collection string

	KRetrieve        int
	KRerank          int
	ExcerptSentences int
	PromptTemplate   string
}

type Pipeline struct {
	deps      Deps
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	reranker  *rerank.Reranker
	composer  *composer.Composer
}

// New validates deps. Components that a command does not need may be nil;
// calling a stage without its component returns ErrConfiguration.
func New(deps Deps) (*Pipeline, error) {
	if deps.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrConfiguration)
	}
	if deps.KRetrieve < 0 || deps.KRerank < 0 {
		return nil, fmt.Errorf("%w: k_retrieve and k_rerank must not be negative", domain.ErrConfiguration)
	}
	if deps.ExcerptSentences == 0 {
		deps.ExcerptSentences = DefaultExcerptSentences
	}

	p := &Pipeline{deps: deps}
	if deps.Embedder != nil && deps.Store != nil {
		p.indexer = indexer.New(deps.Embedder, deps.Store, deps.Collection)
		p.retriever = retriever.New(deps.Embedder, deps.Store, deps.Collection)
	}
	if deps.Scorer != nil {
		p.reranker = rerank.New(deps.Scorer)
	}
	if deps.LLM != nil {
		c, err := composer.New(deps.LLM, deps.PromptTemplate)
		if err != nil {
			return nil, err
		}
		p.composer = c
	}
	return p, nil
}

func missing(stage string) error {
	return fmt.Errorf("%w: pipeline has no %s", domain.ErrConfiguration, stage)
}

// TagPages cleans and labels crawl output.
func (p *Pipeline) TagPages(res *crawler.Result) []tagging.Record {
	recs := tagging.Tag(res.Pages, res.Documents)
	counts := map[string]int{}
	for _, r := range recs {
		counts[r.Sitemap]++
	}
	logger.Info("tagged records", "pages", len(res.Pages), "documents", len(res.Documents), "sitemaps", counts)
	return recs
}

// Status is the result of chunking one record.
type Status string

const (
	StatusChunked Status = "chunked"
	StatusSkipped Status = "skipped"
)

// Outcome reports what happened to one input record. Skips are expected
// (pages with no text); anything else aborts the run.
type Outcome struct {
	SourceURL string
	Status    Status
	Chunks    int
	Reason    string
}

// ChunkPages chunks every tagged record. Records without text are skipped;
// any other failure aborts with no output.
func (p *Pipeline) ChunkPages(recs []tagging.Record) ([]chunker.Record, []Outcome, error) {
	if p.deps.Chunker == nil {
		return nil, nil, missing("chunker")
	}
	var out []chunker.Record
	outcomes := make([]Outcome, 0, len(recs))
	for _, rec := range recs {
		chunks, err := p.deps.Chunker.Chunk(rec.Document())
		if errors.Is(err, domain.ErrEmptyInput) {
			outcomes = append(outcomes, Outcome{SourceURL: rec.SourceURL, Status: StatusSkipped, Reason: err.Error()})
			logger.Debug("skipped record", "url", rec.SourceURL, "reason", err)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("chunking %s: %w", rec.SourceURL, err)
		}
		for _, ch := range chunks {
			out = append(out, chunker.Record{
				SourceURL:   rec.SourceURL,
				Sitemap:     rec.Sitemap,
				ProgramType: rec.ProgramType,
				Slugs:       rec.Slugs,
				ChunkText:   ch.Text(),
				ChunkID:     ch.ID,
			})
		}
		outcomes = append(outcomes, Outcome{SourceURL: rec.SourceURL, Status: StatusChunked, Chunks: len(chunks)})
	}
	logger.Info("chunked records", "records", len(recs), "chunks", len(out), "skipped", countStatus(outcomes, StatusSkipped))
	return out, outcomes, nil
}

func countStatus(outcomes []Outcome, s Status) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Index converts chunk records into passages and indexes them in one batch.
func (p *Pipeline) Index(ctx context.Context, recs []chunker.Record) (int, error) {
	if p.indexer == nil {
		return 0, missing("embedder or vector store")
	}
	return p.indexer.Index(ctx, toPassages(recs))
}

// Replace rebuilds the collection from recs. On any error the collection
// keeps its previous contents.
func (p *Pipeline) Replace(ctx context.Context, recs []chunker.Record) (int, error) {
	if p.indexer == nil {
		return 0, missing("embedder or vector store")
	}
	return p.indexer.Replace(ctx, toPassages(recs))
}

func toPassages(recs []chunker.Record) []domain.Passage {
	passages := make([]domain.Passage, len(recs))
	rejected := map[string]int{}
	for i, r := range recs {
		pass, keys := r.ToPassage()
		passages[i] = pass
		for _, k := range keys {
			rejected[k]++
		}
	}
	if len(rejected) > 0 {
		logger.Warn("metadata fields left out of the index", "fields", rejected)
	}
	return passages
}

// Source is one cited passage in an answer.
type Source struct {
	Passage   domain.Passage
	Relevance domain.Relevance
	Excerpt   string
}

// Result is a composed answer with its sources in rerank order.
type Result struct {
	Query   string
	Answer  string
	Sources []Source
	Elapsed time.Duration
}

// Ask runs retrieve, rerank and compose for one question. The first failing
// stage ends the request.
func (p *Pipeline) Ask(ctx context.Context, query string) (*Result, error) {
	switch {
	case p.retriever == nil:
		return nil, missing("embedder or vector store")
	case p.reranker == nil:
		return nil, missing("reranker")
	case p.composer == nil:
		return nil, missing("language model")
	}
	query = strings.TrimSpace(query)
	start := time.Now()

	candidates, err := p.retriever.Retrieve(ctx, query, p.deps.KRetrieve)
	if err != nil {
		return nil, err
	}
	ranked, err := p.reranker.Rerank(ctx, query, candidates, p.deps.KRerank)
	if err != nil {
		return nil, err
	}
	passages := make([]domain.Passage, len(ranked))
	for i, r := range ranked {
		passages[i] = r.Passage
	}
	logger.Info("retrieved context",
		"candidates", len(candidates),
		"kept", len(ranked),
		"sitemaps", retriever.Distribution(passages, "sitemap"),
		"program_types", retriever.Distribution(passages, "program_type"))

	ans, err := p.composer.Compose(ctx, query, ranked)
	if err != nil {
		return nil, err
	}
	res := &Result{Query: query, Answer: ans.Text, Sources: make([]Source, len(ans.Passages))}
	for i, r := range ans.Passages {
		res.Sources[i] = Source{
			Passage:   r.Passage,
			Relevance: r.Relevance,
			Excerpt:   summarizer.Excerpt(r.Passage.Text, query, p.deps.ExcerptSentences),
		}
	}
	res.Elapsed = time.Since(start)
	logger.Debug("answered", "query", query, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// Stats describes the configured collection.
func (p *Pipeline) Stats(ctx context.Context) (domain.CollectionInfo, error) {
	if p.deps.Store == nil {
		return domain.CollectionInfo{}, missing("vector store")
	}
	return p.deps.Store.Describe(ctx, p.deps.Collection)
}

// SourceURLs lists the distinct source urls of a result in citation order.
func (r *Result) SourceURLs() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.Sources {
		if s.Passage.SourceURL == "" || seen[s.Passage.SourceURL] {
			continue
		}
		seen[s.Passage.SourceURL] = true
		out = append(out, s.Passage.SourceURL)
	}
	return out
}

// Summary counts outcomes by status, in a stable order for printing.
func Summary(outcomes []Outcome) []string {
	counts := map[Status]int{}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	keys := make([]string, 0, len(counts))
	for s, n := range counts {
		keys = append(keys, fmt.Sprintf("%s=%d", s, n))
	}
	sort.Strings(keys)
	return keys
}
