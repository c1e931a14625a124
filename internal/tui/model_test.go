package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
	"campusqa/internal/service"
)

type fakeAsker struct {
	res   *service.Result
	err   error
	query string
}

func (f *fakeAsker) Ask(_ context.Context, q string) (*service.Result, error) {
	f.query = q
	return f.res, f.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func submit(t *testing.T, m Model, q string) Model {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m = next.(Model)
	require.True(t, m.waiting)

	next, _ = m.Update(m.ask(q)())
	return next.(Model)
}

func TestModel_ShowsAnswerAndSources(t *testing.T) {
	asker := &fakeAsker{res: &service.Result{
		Query:  "accounting",
		Answer: "UTD offers an MS in Accounting.",
		Sources: []service.Source{
			{Passage: domain.Passage{ID: "a", SourceURL: "https://jindal.utdallas.edu/accounting"}, Relevance: 0.9, Excerpt: "MS in Accounting."},
			{Passage: domain.Passage{ID: "b", SourceURL: "https://jindal.utdallas.edu/finance"}, Relevance: 0.2, Excerpt: "MS in Finance."},
		},
		Elapsed: 12 * time.Millisecond,
	}}
	m := sized(t, New(asker, "2 passages indexed", time.Second))
	assert.Contains(t, m.View(), "No answer yet.")

	m = submit(t, m, "  accounting  ")
	assert.Equal(t, "accounting", asker.query)
	assert.False(t, m.waiting)
	assert.Empty(t, m.input.Value())

	view := m.View()
	assert.Contains(t, view, "UTD offers an MS in Accounting.")
	assert.Contains(t, view, "Source 1/2")
	assert.Contains(t, view, "https://jindal.utdallas.edu/accounting")
	assert.Contains(t, view, "2 sources")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Contains(t, m.View(), "Source 2/2")
	assert.Contains(t, m.View(), "https://jindal.utdallas.edu/finance")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 0, m.cursor)
}

func TestModel_ShowsError(t *testing.T) {
	asker := &fakeAsker{err: errors.New("llm unavailable")}
	m := sized(t, New(asker, "", 0))
	m = submit(t, m, "tuition")
	assert.Contains(t, m.View(), "Error: llm unavailable")
	assert.Nil(t, m.result)
}

func TestModel_IgnoresBlankAndBusyEnter(t *testing.T) {
	m := sized(t, New(&fakeAsker{}, "", 0))
	m.input.SetValue("   ")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, next.(Model).waiting)

	m.waiting = true
	m.input.SetValue("again")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestModel_Quit(t *testing.T) {
	m := New(&fakeAsker{}, "", 0)
	assert.Equal(t, "Loading...", m.View())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestHighlightTerms_KeepsText(t *testing.T) {
	assert.Equal(t, "", highlightTerms("", "accounting"))
	assert.Equal(t, "MS in Accounting.", highlightTerms("MS in Accounting.", "the"))
}
