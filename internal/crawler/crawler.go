package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	colly "github.com/gocolly/colly/v2"

	"campusqa/internal/domain"
	"campusqa/internal/logger"
)

// Options holds configuration for a crawl job.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Delay between requests to the same host.
	Delay time.Duration
	// Extensions of linked files to download, lower-case with the dot.
	Extensions []string
	// DocumentDir, when set, receives the raw downloaded files.
	DocumentDir      string
	MaxDocumentBytes int64
	HTTPClient       *http.Client
}

// Failure records a URL that could not be crawled or extracted.
type Failure struct {
	URL string
	Err error
}

// Result holds everything one crawl produced.
type Result struct {
	Pages     []PageRecord
	Documents []DocumentRecord
	Failures  []Failure
}

// Crawler visits seed pages one after another and pulls the text of linked documents.
type Crawler struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Crawler {
	if opts.UserAgent == "" {
		opts.UserAgent = "campusqa-crawler/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".pdf", ".docx", ".pptx"}
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = 50 << 20
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Crawler{opts: opts, client: client}
}

type pageVisit struct {
	text    string
	links   []string
	gotHTML bool
	err     error
}

func (c *Crawler) newCollector(ctx context.Context, visit *pageVisit) *colly.Collector {
	col := colly.NewCollector(colly.UserAgent(c.opts.UserAgent))
	col.SetRequestTimeout(c.opts.Timeout)
	if c.opts.Delay > 0 {
		_ = col.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       c.opts.Delay,
		})
	}

	col.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	col.OnHTML("body", func(e *colly.HTMLElement) {
		visit.gotHTML = true
		visit.text = VisibleText(e.DOM)
		e.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			abs := e.Request.AbsoluteURL(href)
			if abs != "" && c.isDocument(abs) {
				visit.links = append(visit.links, abs)
			}
		})
	})
	col.OnError(func(_ *colly.Response, err error) {
		visit.err = err
	})
	return col
}

// Crawl visits every seed in order. Per-URL failures are collected in the
// result; only cancellation stops the crawl early.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) (*Result, error) {
	res := &Result{}
	seenDocs := make(map[string]bool)

	for i, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		logger.Info("Scraping page", "n", i+1, "total", len(seeds), "url", seed)

		visit := &pageVisit{}
		err := c.newCollector(ctx, visit).Visit(seed)
		if err == nil {
			err = visit.err
		}
		if err == nil && !visit.gotHTML {
			err = fmt.Errorf("%w: no html body", domain.ErrEmptyInput)
		}
		if err != nil {
			logger.Warn("Failed to scrape page", "url", seed, "error", err)
			res.Failures = append(res.Failures, Failure{URL: seed, Err: err})
			continue
		}
		res.Pages = append(res.Pages, PageRecord{URL: seed, ExtractedText: strings.TrimSpace(visit.text)})

		for _, link := range visit.links {
			if seenDocs[link] {
				continue
			}
			seenDocs[link] = true
			doc, err := c.fetchDocument(ctx, link)
			if err != nil {
				logger.Warn("Failed to download or extract document", "url", link, "error", err)
				res.Failures = append(res.Failures, Failure{URL: link, Err: err})
				continue
			}
			res.Documents = append(res.Documents, *doc)
		}
	}

	logger.Info("Scraping completed",
		"pages", len(res.Pages), "documents", len(res.Documents), "failures", len(res.Failures))
	return res, nil
}

func (c *Crawler) isDocument(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range c.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (c *Crawler) fetchDocument(ctx context.Context, link string) (*DocumentRecord, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	fileName := path.Base(u.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: status %d", link, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxDocumentBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.opts.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, fileName, c.opts.MaxDocumentBytes)
	}

	if c.opts.DocumentDir != "" {
		if err := os.MkdirAll(c.opts.DocumentDir, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(c.opts.DocumentDir, fileName), data, 0o644); err != nil {
			return nil, err
		}
	}

	text, err := ExtractDocument(fileName, data)
	if err != nil {
		return nil, err
	}
	return &DocumentRecord{URL: link, FileName: fileName, ExtractedText: strings.TrimSpace(text)}, nil
}
