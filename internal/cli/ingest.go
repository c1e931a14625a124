package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"campusqa/internal/app"
	"campusqa/internal/chunker"
	"campusqa/internal/crawler"
	"campusqa/internal/domain"
	"campusqa/internal/service"
	"campusqa/internal/tagging"
)

var (
	crawlSeeds string
	indexReset bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Scrape the seed pages and their linked documents",
	Long: `Visits every seed URL in order, extracts the visible page text and the text of
linked PDF, DOCX and PPTX files, and writes pages.json and documents.json into
the data directory. Pages that fail are reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Clean crawled text and attach sitemap and program metadata",
	Args:  cobra.NoArgs,
	RunE:  runTag,
}

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Split tagged records into overlapping sentence chunks",
	Args:  cobra.NoArgs,
	RunE:  runChunk,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed chunk records and upsert them into the vector store",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Tag, chunk and index the last crawl in one run",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlSeeds, "seeds", "", "seed file (.xlsx or one URL per line); overrides crawler.seeds_path")
	indexCmd.Flags().BoolVar(&indexReset, "reset", false, "replace the collection's contents instead of upserting")
	ingestCmd.Flags().BoolVar(&indexReset, "reset", false, "replace the collection's contents instead of upserting")
	rootCmd.AddCommand(crawlCmd, tagCmd, chunkCmd, indexCmd, ingestCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	path := crawlSeeds
	if path == "" {
		path = cfg.Crawler.SeedsPath
	}
	if path == "" {
		return fmt.Errorf("%w: no seed file, pass --seeds or set crawler.seeds_path", domain.ErrConfiguration)
	}
	seeds, err := crawler.LoadSeeds(path, cfg.Crawler.SeedsColumn)
	if err != nil {
		return fmt.Errorf("loading seeds: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := crawler.New(app.CrawlOptions(cfg)).Crawl(ctx, seeds)
	if err != nil {
		return err
	}
	if err := res.Save(cfg.DataDir); err != nil {
		return fmt.Errorf("saving crawl: %w", err)
	}
	cmd.Printf("Crawled %d pages and %d documents into %s\n", len(res.Pages), len(res.Documents), cfg.DataDir)
	for _, f := range res.Failures {
		cmd.Printf("  failed %s: %v\n", f.URL, f.Err)
	}
	return nil
}

func tagCrawl() ([]tagging.Record, error) {
	res, err := crawler.LoadResult(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading crawl from %s: %w", cfg.DataDir, err)
	}
	p, err := service.New(service.Deps{Collection: cfg.VectorStore.Collection})
	if err != nil {
		return nil, err
	}
	recs := p.TagPages(res)
	if err := tagging.WriteFile(app.TaggedPath(cfg), recs); err != nil {
		return nil, fmt.Errorf("writing tagged records: %w", err)
	}
	return recs, nil
}

func runTag(cmd *cobra.Command, _ []string) error {
	recs, err := tagCrawl()
	if err != nil {
		return err
	}
	cmd.Printf("Tagged %d records into %s\n", len(recs), app.TaggedPath(cfg))
	return nil
}

func chunkRecords(cmd *cobra.Command, p *service.Pipeline, recs []tagging.Record) ([]chunker.Record, error) {
	chunks, outcomes, err := p.ChunkPages(recs)
	if err != nil {
		return nil, err
	}
	if err := chunker.WriteChunkFile(app.ChunksPath(cfg), chunks); err != nil {
		return nil, fmt.Errorf("writing chunks: %w", err)
	}
	cmd.Printf("Wrote %d chunks to %s (%s)\n", len(chunks), app.ChunksPath(cfg), strings.Join(service.Summary(outcomes), ", "))
	return chunks, nil
}

func runChunk(cmd *cobra.Command, _ []string) error {
	recs, err := tagging.ReadFile(app.TaggedPath(cfg))
	if err != nil {
		return fmt.Errorf("reading tagged records: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	res, err := app.Open(ctx, cfg, app.NeedChunker)
	if err != nil {
		return err
	}
	defer res.Close()
	p, err := res.Pipeline()
	if err != nil {
		return err
	}
	_, err = chunkRecords(cmd, p, recs)
	return err
}

func indexChunks(ctx context.Context, cmd *cobra.Command, res *app.Resources, p *service.Pipeline, chunks []chunker.Record) error {
	index := p.Index
	if indexReset {
		index = p.Replace
	}
	n, err := index(ctx, chunks)
	if err != nil {
		return err
	}
	if indexReset {
		cmd.Printf("Replaced collection %s\n", cfg.VectorStore.Collection)
	}
	cmd.Printf("Indexed %d passages into %s with %s\n", n, cfg.VectorStore.Collection, res.Embedder.Name())
	return nil
}

func runIndex(cmd *cobra.Command, _ []string) error {
	chunks, err := chunker.ReadChunkFile(app.ChunksPath(cfg))
	if err != nil {
		return fmt.Errorf("reading chunks: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	res, err := app.Open(ctx, cfg, app.NeedIndex)
	if err != nil {
		return err
	}
	defer res.Close()
	p, err := res.Pipeline()
	if err != nil {
		return err
	}
	return indexChunks(ctx, cmd, res, p, chunks)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	recs, err := tagCrawl()
	if err != nil {
		return err
	}
	cmd.Printf("Tagged %d records\n", len(recs))

	ctx, cancel := signalContext()
	defer cancel()
	res, err := app.Open(ctx, cfg, app.NeedChunker|app.NeedIndex)
	if err != nil {
		return err
	}
	defer res.Close()
	p, err := res.Pipeline()
	if err != nil {
		return err
	}
	chunks, err := chunkRecords(cmd, p, recs)
	if err != nil {
		return err
	}
	return indexChunks(ctx, cmd, res, p, chunks)
}
