package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"utd's", "ms", "in", "accounting", "takes", "36", "hours"},
		Words("UTD's MS in Accounting takes 36 hours."))
}

func TestTerms_DropsStopwords(t *testing.T) {
	assert.Equal(t, []string{"ms", "accounting"}, Terms("Tell me about MS Accounting"))
	assert.Empty(t, Terms("what is the"))
}

func TestTermSet(t *testing.T) {
	set := TermSet("Finance and finance courses")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "finance")
	assert.Contains(t, set, "courses")
}
