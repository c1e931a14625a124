package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"campusqa/internal/domain"
)

// SentenceChunker packs sentences into chunks of at most chunkSize characters,
// repeating up to overlapSentences trailing sentences of each chunk at the
// start of the next.
type SentenceChunker struct {
	chunkSize        int
	overlapSentences int
	splitter         SentenceSplitter
}

func NewSentenceChunker(chunkSize, overlapSentences int, splitter SentenceSplitter) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if splitter == nil {
		splitter = NewRegexSplitter()
	}
	return &SentenceChunker{
		chunkSize:        chunkSize,
		overlapSentences: overlapSentences,
		splitter:         splitter,
	}
}

// Chunk splits the document. A document without sentences yields ErrEmptyInput.
func (c *SentenceChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.SourceURL) == "" {
		return nil, fmt.Errorf("%w: document without source url", domain.ErrInvalidInput)
	}
	sentences := c.splitter.Split(doc.Text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyInput, doc.SourceURL)
	}

	groups := Pack(sentences, c.chunkSize, c.overlapSentences)
	chunks := make([]domain.Chunk, 0, len(groups))
	for i, g := range groups {
		chunks = append(chunks, domain.Chunk{
			ID:        ChunkID(doc.SourceURL, i),
			SourceURL: doc.SourceURL,
			Index:     i,
			Sentences: g.Sentences,
			Overlap:   g.Overlap,
		})
	}
	return chunks, nil
}

// ChunkID is the stable passage key for the idx-th chunk of a source.
func ChunkID(sourceURL string, idx int) string {
	return fmt.Sprintf("%s#chunk-%d", sourceURL, idx)
}

// Group is one packed run of sentences; the first Overlap of them were
// carried over from the previous group.
type Group struct {
	Sentences []string
	Overlap   int
}

// Pack groups sentences in order. Length is counted in characters without the
// joining spaces. A sentence is added while the group stays within size, and
// always when the group has no fresh sentence yet, so an oversized sentence
// forms its own group. Each new group starts with the last min(overlap,
// fresh) sentences of the previous group, which keeps every sentence in at
// most two consecutive groups.
func Pack(sentences []string, size, overlap int) []Group {
	var (
		groups  []Group
		current []string
		carried int
		length  int
	)
	flush := func() {
		groups = append(groups, Group{Sentences: current, Overlap: carried})
		fresh := len(current) - carried
		keep := min(overlap, fresh)
		next := make([]string, keep)
		copy(next, current[len(current)-keep:])
		current, carried, length = next, keep, 0
		for _, s := range next {
			length += utf8.RuneCountInString(s)
		}
	}

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if length+n > size && len(current) > carried {
			flush()
		}
		current = append(current, s)
		length += n
	}
	if len(current) > carried {
		groups = append(groups, Group{Sentences: current, Overlap: carried})
	}
	return groups
}
