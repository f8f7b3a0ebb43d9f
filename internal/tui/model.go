package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"paperbot/internal/answer"
	"paperbot/internal/model"
	"paperbot/internal/scihub"
)

// AnswerPort is the TUI-facing subset of the application service.
type AnswerPort interface {
	Answer(ctx context.Context, user, question string) (model.AskResult, error)
	ResolveDOI(ctx context.Context, user, query string) (string, error)
}

// answerMsg carries an asynchronous answer back into the update loop.
type answerMsg struct {
	text string
	err  error
}

type entry struct {
	question string
	response string
}

// Model is the Bubble Tea model for the interactive chat.
type Model struct {
	service  AnswerPort
	user     string
	input    textinput.Model
	viewport viewport.Model
	history  []entry
	status   string
	ready    bool
	waiting  bool
}

// New creates a chat model. user keys the per-user lease in the service.
func New(service AnswerPort, user string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or paste a DOI"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		user:     user,
		input:    ti,
		viewport: vp,
		status:   "Ready. Type a question and press Enter.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := chatBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, spacer, input frame, status
		vh := msg.Height - reserved - fh
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width-4)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.String() == "esc" {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.waiting {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				break
			}
			m.input.SetValue("")
			m.history = append(m.history, entry{question: q})
			m.waiting = true
			m.status = "Thinking..."
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
			return m, m.dispatch(q)
		}
		if msg.String() == "up" || msg.String() == "down" || msg.String() == "pgup" || msg.String() == "pgdown" {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.waiting = false
		last := len(m.history) - 1
		if last >= 0 {
			if msg.err != nil {
				if errors.Is(msg.err, model.ErrUserBusy) {
					m.history[last].response = answer.MsgUserBusy
				} else {
					m.history[last].response = "Error: " + msg.err.Error()
				}
			} else {
				m.history[last].response = msg.text
			}
		}
		m.status = "Ready."
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch routes the input: DOIs resolve against the mirrors, everything
// else goes through the grounded answer path.
func (m Model) dispatch(q string) tea.Cmd {
	service, user := m.service, m.user
	return func() tea.Msg {
		ctx := context.Background()
		if scihub.IsDOI(q) {
			pdfURL, err := service.ResolveDOI(ctx, user, q)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return answerMsg{text: "No PDF found for that DOI on any mirror."}
				}
				return answerMsg{err: err}
			}
			return answerMsg{text: "PDF link: " + pdfURL}
		}

		result, err := service.Answer(ctx, user, q)
		if err != nil {
			return answerMsg{err: err}
		}
		return answerMsg{text: renderAskResult(result)}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("paperbot chat")
	chat := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + chat + "\n" + input + "\n" + status
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, e := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + e.question))
		b.WriteString("\n")
		if e.response == "" {
			b.WriteString("...")
		} else {
			b.WriteString(e.response)
		}
	}
	return b.String()
}

func renderAskResult(result model.AskResult) string {
	if len(result.References) == 0 {
		return result.Answer
	}
	var b strings.Builder
	b.WriteString(result.Answer)
	b.WriteString("\n\nReferences:\n")
	for _, ref := range result.References {
		pages := make([]string, len(ref.Pages))
		for i, p := range ref.Pages {
			pages[i] = fmt.Sprintf("%d", p)
		}
		fmt.Fprintf(&b, "  %s (p. %s)\n", ref.Document, strings.Join(pages, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
