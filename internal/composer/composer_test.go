package composer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
)

type fakeLLM struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func ranked(texts ...string) []domain.Ranked {
	out := make([]domain.Ranked, len(texts))
	for i, t := range texts {
		out[i] = domain.Ranked{Passage: domain.Passage{ID: t, Text: t}, Relevance: domain.Relevance(len(texts) - i)}
	}
	return out
}

func TestCompose_DefaultPrompt(t *testing.T) {
	llm := &fakeLLM{reply: "  Yes, it does.\n"}
	c, err := New(llm, "")
	require.NoError(t, err)

	passages := ranked("UTD offers an MS in Accounting.", "The program is STEM designated.")
	ans, err := c.Compose(context.Background(), "Does UTD offer MS Accounting?", passages)
	require.NoError(t, err)
	assert.Equal(t, "Yes, it does.", ans.Text)
	assert.Equal(t, passages, ans.Passages)

	require.Len(t, llm.prompts, 1)
	assert.Equal(t, "Answer the question based only on the context below:\n\n"+
		"Context:\nUTD offers an MS in Accounting.\n\nThe program is STEM designated.\n\n"+
		"Question: Does UTD offer MS Accounting?\nAnswer:", llm.prompts[0])
}

func TestCompose_NoPassagesSkipsModel(t *testing.T) {
	llm := &fakeLLM{}
	c, err := New(llm, "")
	require.NoError(t, err)

	ans, err := c.Compose(context.Background(), "Where is parking?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, ans.Text)
	assert.Empty(t, ans.Passages)
	assert.Empty(t, llm.prompts)
}

func TestCompose_ModelFailure(t *testing.T) {
	c, err := New(&fakeLLM{err: errors.New("boom")}, "")
	require.NoError(t, err)
	_, err = c.Compose(context.Background(), "q", ranked("p"))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "fake", be.Backend)
}

func TestCompose_CancelledRequestIsNotUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &fakeLLM{err: domain.Unavailable("llm", context.Canceled)}
	c, err := New(llm, "")
	require.NoError(t, err)

	_, err = c.Compose(ctx, "q", ranked("p"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestNew_Template(t *testing.T) {
	_, err := New(&fakeLLM{}, "Context: {{context}}")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	c, err := New(&fakeLLM{}, "Q={{question}} C={{context}}")
	require.NoError(t, err)
	assert.Equal(t, "Q=what is {{context}}? C=a\n\nb", c.Prompt("what is {{context}}?", ranked("a", "b")))
}

func TestCompose_BlankQuestion(t *testing.T) {
	c, err := New(&fakeLLM{}, "")
	require.NoError(t, err)
	_, err = c.Compose(context.Background(), " ", ranked("p"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
