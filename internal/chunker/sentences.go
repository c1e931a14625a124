package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// SentenceSplitter turns free text into an ordered list of sentences.
type SentenceSplitter interface {
	Split(text string) []string
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// PunktSplitter splits with the pretrained English punkt model. Blank lines
// always end a sentence, since page text often carries headings and list
// items without terminal punctuation.
type PunktSplitter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

func NewPunktSplitter() (*PunktSplitter, error) {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load punkt model: %w", err)
	}
	return &PunktSplitter{tokenizer: t}, nil
}

func (p *PunktSplitter) Split(text string) []string {
	var out []string
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		for _, s := range p.tokenizer.Tokenize(para) {
			if t := strings.TrimSpace(s.Text); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// RegexSplitter is the lightweight splitter used when no punkt model is wanted.
type RegexSplitter struct {
	re *regexp.Regexp
}

func NewRegexSplitter() *RegexSplitter {
	return &RegexSplitter{re: regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)}
}

func (r *RegexSplitter) Split(text string) []string {
	var out []string
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		for _, s := range r.re.FindAllString(para, -1) {
			if t := strings.TrimSpace(s); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
