// Package tagging cleans crawled text and attaches site and program metadata.
package tagging

import (
	"regexp"
	"strings"

	"campusqa/internal/crawler"
	"campusqa/internal/domain"
)

const (
	ContentWebpage  = "webpage"
	ContentDocument = "document"
	Other           = "Other"
)

// Record is a cleaned, tagged page or document.
type Record struct {
	SourceURL   string   `json:"source_url"`
	ContentType string   `json:"content_type"`
	Slugs       []string `json:"slugs"`
	Sitemap     string   `json:"sitemap"`
	ProgramType string   `json:"program_type"`
	Text        string   `json:"text"`
}

// Document converts the record for chunking. Slugs stay out of the metadata.
func (r Record) Document() domain.Document {
	return domain.Document{
		SourceURL: r.SourceURL,
		Text:      r.Text,
		Metadata: domain.Metadata{
			"content_type": domain.String(r.ContentType),
			"sitemap":      domain.String(r.Sitemap),
			"program_type": domain.String(r.ProgramType),
		},
	}
}

type rule struct {
	needle string
	label  string
}

// Host table; matching is case-sensitive and the first hit wins.
var sitemaps = []rule{
	{"jindal.utdallas.edu", "Jindal"},
	{"accounting.utdallas.edu", "Accounting"},
	{"execed.utdallas.edu", "Executive Education"},
	{"fin.utdallas.edu", "Finance"},
	{"infosystems.utdallas.edu", "Information Systems"},
	{"marketing.utdallas.edu", "Marketing"},
	{"mba.utdallas.edu", "MBA"},
	{"om.utdallas.edu", "Operations Management"},
	{"osim.utdallas.edu", "Organizations, Strategy & International Management"},
}

// Path table; matched against the lower-cased url, first hit wins.
var programTypes = []rule{
	{"/mba", "MBA"},
	{"/ms-", "MS"},
	{"/bs-", "Undergraduate/BS"},
	{"/undergraduate", "Undergraduate/BS"},
	{"/phd", "PhD"},
	{"/execed", "Executive Education"},
	{"/certificate", "Certificate Program"},
	{"/honors", "Honors Program"},
}

func match(s string, rules []rule) string {
	for _, r := range rules {
		if strings.Contains(s, r.needle) {
			return r.label
		}
	}
	return Other
}

// DetectSitemap names the school site a url belongs to.
func DetectSitemap(url string) string {
	return match(url, sitemaps)
}

// DetectProgramType guesses the degree program from the url path.
func DetectProgramType(url string) string {
	return match(strings.ToLower(url), programTypes)
}

// Slugs returns the "/"-separated parts of url that are non-empty, contain no
// dot and do not start with "http".
func Slugs(url string) []string {
	slugs := []string{}
	for _, part := range strings.Split(url, "/") {
		if part == "" || strings.Contains(part, ".") || strings.HasPrefix(part, "http") {
			continue
		}
		slugs = append(slugs, part)
	}
	return slugs
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Clean trims every line, collapses runs of spaces and reduces blank runs to
// a single paragraph break.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}

// Tag cleans and labels every page and document record.
func Tag(pages []crawler.PageRecord, docs []crawler.DocumentRecord) []Record {
	out := make([]Record, 0, len(pages)+len(docs))
	for _, p := range pages {
		out = append(out, newRecord(p.URL, ContentWebpage, p.ExtractedText))
	}
	for _, d := range docs {
		out = append(out, newRecord(d.URL, ContentDocument, d.ExtractedText))
	}
	return out
}

func newRecord(url, contentType, text string) Record {
	return Record{
		SourceURL:   url,
		ContentType: contentType,
		Slugs:       Slugs(url),
		Sitemap:     DetectSitemap(url),
		ProgramType: DetectProgramType(url),
		Text:        Clean(text),
	}
}

// ReadFile loads a tagged records file.
func ReadFile(path string) ([]Record, error) {
	var recs []Record
	if err := crawler.ReadJSON(path, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// WriteFile writes tagged records as indented JSON.
func WriteFile(path string, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	return crawler.WriteJSON(path, recs)
}
