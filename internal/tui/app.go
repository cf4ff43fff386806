// Package tui shows upload progress in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Wojt3kW/ocrpdf/internal/client"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const tickInterval = 100 * time.Millisecond

// UploadFunc performs the request being waited on.
type UploadFunc func(ctx context.Context) (*client.Document, error)

// RunUpload runs fn while showing a spinner. Ctrl+C cancels the request.
func RunUpload(ctx context.Context, title, filename string, fn UploadFunc) (*client.Document, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newUploadModel(ctx, cancel, title, filename, fn)
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	um := final.(uploadModel)
	if um.cancelled {
		return nil, context.Canceled
	}
	return um.doc, um.err
}

type tickMsg time.Time

type doneMsg struct {
	doc *client.Document
	err error
}

// uploadModel waits for a single upload to finish.
type uploadModel struct {
	title     string
	filename  string
	ctx       context.Context
	cancel    context.CancelFunc
	fn        UploadFunc
	started   time.Time
	elapsed   time.Duration
	frame     int
	doc       *client.Document
	err       error
	done      bool
	cancelled bool
}

func newUploadModel(ctx context.Context, cancel context.CancelFunc, title, filename string, fn UploadFunc) uploadModel {
	return uploadModel{
		title:    title,
		filename: filename,
		ctx:      ctx,
		cancel:   cancel,
		fn:       fn,
		started:  time.Now(),
	}
}

func (m uploadModel) Init() tea.Cmd {
	return tea.Batch(m.run(), tick())
}

func (m uploadModel) run() tea.Cmd {
	return func() tea.Msg {
		doc, err := m.fn(m.ctx)
		return doneMsg{doc: doc, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m uploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			m.cancelled = true
			m.done = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		m.elapsed = time.Time(msg).Sub(m.started)
		return m, tick()

	case doneMsg:
		m.doc = msg.doc
		m.err = msg.err
		m.done = true
		if errors.Is(m.err, context.Canceled) {
			m.cancelled = true
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m uploadModel) View() string {
	s := titleStyle.Render(m.title) + "\n"
	s += statusStyle.Render(m.filename) + "\n\n"

	switch {
	case m.cancelled:
		s += errorStyle.Render("Cancelled") + "\n"
	case m.done && m.err != nil:
		s += errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	case m.done:
		s += successStyle.Render("Done: "+m.doc.Filename) + "\n"
	default:
		s += fmt.Sprintf("%s Processing... %s\n", spinnerFrames[m.frame], m.elapsed.Truncate(time.Second))
		s += helpStyle.Render("Ctrl+C Cancel")
	}

	return s
}
