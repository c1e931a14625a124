// Package composer turns reranked passages and a question into an answer
// from the language model.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campusqa/internal/domain"
	"campusqa/internal/logger"
)

// Template placeholders.
const (
	ContextPlaceholder  = "{{context}}"
	QuestionPlaceholder = "{{question}}"
)

// DefaultTemplate confines the model to the supplied context.
const DefaultTemplate = `Answer the question based only on the context below:

Context:
{{context}}

Question: {{question}}
Answer:`

// NoContextAnswer is returned without calling the model when nothing was retrieved.
const NoContextAnswer = "I could not find any relevant information about that on the school website."

// Answer is the model's reply plus the passages it was given, in prompt order.
type Answer struct {
	Text     string
	Passages []domain.Ranked
}

type Composer struct {
	llm      domain.LanguageModel
	template string
}

// New validates template; an empty one selects DefaultTemplate.
func New(llm domain.LanguageModel, template string) (*Composer, error) {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	for _, ph := range []string{ContextPlaceholder, QuestionPlaceholder} {
		if !strings.Contains(template, ph) {
			return nil, fmt.Errorf("%w: prompt template is missing %s", domain.ErrConfiguration, ph)
		}
	}
	return &Composer{llm: llm, template: template}, nil
}

// Prompt renders the template. Passage texts are joined by a blank line.
func (c *Composer) Prompt(question string, passages []domain.Ranked) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Passage.Text
	}
	r := strings.NewReplacer(
		ContextPlaceholder, strings.Join(texts, "\n\n"),
		QuestionPlaceholder, question,
	)
	return r.Replace(c.template)
}

// Compose makes exactly one model call. It never retries. Surrounding
// whitespace is trimmed from the generated text.
func (c *Composer) Compose(ctx context.Context, question string, passages []domain.Ranked) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if len(passages) == 0 {
		logger.Info("no passages to answer from", "question", question)
		return Answer{Text: NoContextAnswer, Passages: []domain.Ranked{}}, nil
	}

	text, err := c.llm.Generate(ctx, c.Prompt(question, passages))
	if err != nil {
		// a cancelled or expired request is the caller's, not the backend's
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Answer{}, fmt.Errorf("generating answer: %w", ctxErr)
		}
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			err = domain.Unavailable(c.llm.Name(), err)
		}
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	return Answer{Text: strings.TrimSpace(text), Passages: passages}, nil
}
