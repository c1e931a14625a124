// Package tui is the terminal chat front end over the question-answering pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"campusqa/internal/service"
	"campusqa/internal/textutil"
)

// Asker is the TUI-facing subset of the pipeline.
type Asker interface {
	Ask(ctx context.Context, query string) (*service.Result, error)
}

type answerMsg struct {
	res *service.Result
	err error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	asker    Asker
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	result   *service.Result
	summary  string
	status   string
	cursor   int
	ready    bool
	waiting  bool
}

// New creates a chat model. timeout bounds each question; zero means none.
func New(asker Asker, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the school and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		asker:    asker,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Ready. Up/Down browse sources, Ctrl+C quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := asker.Ask(ctx, q)
		return answerMsg{res: res, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = nil
		} else {
			m.result = msg.res
			m.cursor = 0
			m.status = fmt.Sprintf("Answered in %s with %d sources", msg.res.Elapsed.Round(time.Millisecond), len(msg.res.Sources))
		}
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.waiting = true
			m.status = fmt.Sprintf("Thinking about %q", q)
			m.input.SetValue("")
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case "down":
			if n := m.sourceCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := m.sourceCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Campus QA")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	status := m.status
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	status = statusStyle.Render(status)
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) sourceCount() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Sources)
}

func (m Model) render() string {
	if m.result == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(answerStyle.Render(m.result.Answer))
	b.WriteString("\n\n")
	if len(m.result.Sources) == 0 {
		b.WriteString("No sources.")
		return b.String()
	}
	s := m.result.Sources[m.cursor]
	fmt.Fprintf(&b, "Source %d/%d  relevance=%.3f\n", m.cursor+1, len(m.result.Sources), float64(s.Relevance))
	b.WriteString(urlStyle.Render(s.Passage.SourceURL))
	b.WriteString("\n\n")
	b.WriteString(highlightTerms(s.Excerpt, m.result.Query))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	answerStyle    = lipgloss.NewStyle().Bold(true)
	urlStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Underline(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// highlightTerms marks the words of text that are query terms.
func highlightTerms(text, query string) string {
	terms := textutil.TermSet(query)
	if len(terms) == 0 || strings.TrimSpace(text) == "" {
		return text
	}
	fields := strings.Fields(text)
	for i, f := range fields {
		for _, w := range textutil.Words(f) {
			if _, ok := terms[w]; ok {
				fields[i] = highlightStyle.Render(f)
				break
			}
		}
	}
	return strings.Join(fields, " ")
}
