package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/vocabloop/internal/practice"
)

const defaultQueue = 64

type (
	phaseMsg     practice.Phase
	wordMsg      string
	partialMsg   string
	utteranceMsg int
)

var (
	bubbleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 3).
			Width(44).
			Align(lipgloss.Center)
	wordStyle    = lipgloss.NewStyle().Bold(true)
	partialStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	helpStyle    = lipgloss.NewStyle().Faint(true)

	phaseColors = map[practice.Phase]lipgloss.Color{
		practice.PhaseIdle:        "245",
		practice.PhaseIntroducing: "213",
		practice.PhaseListening:   "39",
		practice.PhaseProcessing:  "214",
		practice.PhaseSpeaking:    "213",
		practice.PhaseClosed:      "245",
	}
)

// TUIOption configures a [TUI].
type TUIOption func(*TUI)

// WithOutput sets the terminal the TUI draws on. Default: stdout.
func WithOutput(w io.Writer) TUIOption {
	return func(t *TUI) { t.programOpts = append(t.programOpts, tea.WithOutput(w)) }
}

// WithInput sets where key presses are read from. Default: stdin.
func WithInput(r io.Reader) TUIOption {
	return func(t *TUI) { t.programOpts = append(t.programOpts, tea.WithInput(r)) }
}

// WithKeys sets the handlers for "q" (quit) and "r" (retry now).
func WithKeys(quit, retry func()) TUIOption {
	return func(t *TUI) {
		t.onQuit = quit
		t.onRetry = retry
	}
}

// WithQueue sets how many updates may wait for the renderer before new ones
// are dropped. Default: 64.
func WithQueue(n int) TUIOption {
	return func(t *TUI) {
		if n > 0 {
			t.queue = n
		}
	}
}

// TUI is the terminal bubble. Updates are queued without blocking; when the
// renderer falls behind they are dropped and counted.
type TUI struct {
	updates     chan tea.Msg
	queue       int
	dropped     atomic.Int64
	onQuit      func()
	onRetry     func()
	programOpts []tea.ProgramOption
}

// NewTUI creates a TUI. Call [TUI.Run] to draw it.
func NewTUI(opts ...TUIOption) *TUI {
	t := &TUI{queue: defaultQueue}
	for _, o := range opts {
		o(t)
	}
	t.updates = make(chan tea.Msg, t.queue)
	return t
}

func (t *TUI) SetPhase(p practice.Phase) { t.send(phaseMsg(p)) }

func (t *TUI) SetWord(text string) { t.send(wordMsg(text)) }

func (t *TUI) Partial(text string) { t.send(partialMsg(text)) }

func (t *TUI) Utterance(length int) { t.send(utteranceMsg(length)) }

// Dropped returns the number of updates discarded because the queue was full.
func (t *TUI) Dropped() int64 { return t.dropped.Load() }

func (t *TUI) send(msg tea.Msg) {
	select {
	case t.updates <- msg:
	default:
		t.dropped.Add(1)
	}
}

// Run draws the bubble until the session closes, the learner quits or ctx is
// cancelled.
func (t *TUI) Run(ctx context.Context) error {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, t.programOpts...)
	p := tea.NewProgram(newModel(t.updates, t.onQuit, t.onRetry), opts...)
	_, err := p.Run()
	if err != nil && (ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled)) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	return nil
}

type model struct {
	updates <-chan tea.Msg
	onQuit  func()
	onRetry func()

	phase   practice.Phase
	word    string
	partial string
	heard   int
	spinner spinner.Model
}

func newModel(updates <-chan tea.Msg, onQuit, onRetry func()) model {
	return model{
		updates: updates,
		onQuit:  onQuit,
		onRetry: onRetry,
		phase:   practice.PhaseIdle,
		spinner: spinner.New(spinner.WithSpinner(spinner.Points)),
	}
}

// waitForUpdate delivers the next queued update to Update.
func waitForUpdate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "r":
			if m.onRetry != nil {
				m.onRetry()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case phaseMsg:
		m.setPhase(practice.Phase(msg))
		if m.phase == practice.PhaseClosed {
			return m, tea.Quit
		}
	case wordMsg:
		m.word = string(msg)
	case partialMsg:
		m.partial = string(msg)
	case utteranceMsg:
		m.heard = int(msg)
	default:
		return m, nil
	}
	return m, waitForUpdate(m.updates)
}

func (m *model) setPhase(p practice.Phase) {
	m.phase = p
	switch p {
	case practice.PhaseListening:
		m.partial, m.heard = "", 0
		m.spinner.Spinner = spinner.Points
	case practice.PhaseProcessing:
		m.spinner.Spinner = spinner.Dot
	case practice.PhaseIntroducing, practice.PhaseSpeaking:
		m.spinner.Spinner = spinner.Meter
	case practice.PhaseIdle:
		m.partial, m.heard = "", 0
	}
	m.spinner.Style = lipgloss.NewStyle().Foreground(phaseColors[p])
}

// status is the label of the current phase.
func (m model) status() string {
	switch m.phase {
	case practice.PhaseListening:
		return "Listening..."
	case practice.PhaseProcessing:
		return "Processing..."
	case practice.PhaseIntroducing, practice.PhaseSpeaking:
		return "Speaking..."
	case practice.PhaseClosed:
		return "Goodbye!"
	default:
		return "Ready"
	}
}

func (m model) animated() bool {
	return m.phase != practice.PhaseIdle && m.phase != practice.PhaseClosed
}

func (m model) View() string {
	label := lipgloss.NewStyle().Bold(true).Foreground(phaseColors[m.phase]).Render(m.status())
	if m.animated() {
		label = m.spinner.View() + " " + label
	}

	lines := []string{label, ""}
	if m.word != "" {
		lines = append(lines, wordStyle.Render(m.word))
	}
	if m.phase == practice.PhaseListening {
		if m.partial != "" {
			lines = append(lines, partialStyle.Render(m.partial))
		}
		if m.heard > 0 {
			lines = append(lines, helpStyle.Render(fmt.Sprintf("heard %d characters", m.heard)))
		}
	}

	var b strings.Builder
	b.WriteString(bubbleStyle.Render(lipgloss.JoinVertical(lipgloss.Center, lines...)))
	b.WriteString("\n")
	if m.phase != practice.PhaseClosed {
		b.WriteString(helpStyle.Render("q quit · r retry now"))
		b.WriteString("\n")
	}
	return b.String()
}
