// Package textutil holds the word tokenizer shared by the offline embedder,
// the lexical scorer and the excerpt ranker.
package textutil

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "what", "which", "who", "how", "do", "does",
		"i", "you", "me", "my", "your", "we", "our", "tell",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Words returns the lower-cased word tokens of text in order.
func Words(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// IsStopword reports whether w carries no retrieval signal.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Terms returns the word tokens of text with stopwords removed.
func Terms(text string) []string {
	raw := Words(text)
	out := raw[:0]
	for _, t := range raw {
		if !IsStopword(t) {
			out = append(out, t)
		}
	}
	return out
}

// TermSet returns the distinct terms of text.
func TermSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Terms(text) {
		set[t] = struct{}{}
	}
	return set
}
