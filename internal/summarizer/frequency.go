// Package summarizer picks the sentences of a passage worth quoting next to
// a citation.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"campusqa/internal/textutil"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)

// queryWeight is how much a query term outweighs the most frequent passage term.
const queryWeight = 2.0

// Excerpt returns up to n sentences of text, in their original order, ranked
// by normalized term frequency with query terms boosted. Sentences are
// length-normalized so long ones do not win by size alone.
func Excerpt(text, query string, n int) string {
	if n <= 0 {
		n = 2
	}
	var sentences []string
	for _, s := range sentencePattern.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= n {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.Terms(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	for tok := range textutil.TermSet(query) {
		freq[tok] += queryWeight
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := textutil.Terms(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}
