// Package tui is the terminal chat surface: a bubbletea program that shows
// the active session's conversation and outline with a live save
// indicator.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"codeberg.org/coursepilot/server/internal/surface"
)

func New(s Surface, opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "describe the course you want to build..."
	ti.Focus()
	ti.CharLimit = 4000
	ti.Width = 80
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorLightGray)
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorWhite)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorGray)

	return &Model{
		surface: s,
		opts:    opts,
		view:    s.View(),
		input:   ti,
		spinner: sp,
	}
}

// Run starts the program and feeds it surface changes and remote save
// notifications until the author quits or ctx is done.
func Run(ctx context.Context, s Surface, opts Options, remote <-chan RemoteChangeMsg) error {
	p := tea.NewProgram(New(s, opts), tea.WithAltScreen(), tea.WithContext(ctx))

	if opts.Prompter != nil {
		opts.Prompter.attach(p)
		defer opts.Prompter.detach()
	}

	s.OnChange(func(v surface.View) { p.Send(ViewChangedMsg{View: v}) })
	defer s.OnChange(nil)

	done := make(chan struct{})
	defer close(done)
	if remote != nil {
		go func() {
			for {
				select {
				case <-done:
					return
				case msg := <-remote:
					p.Send(msg)
				}
			}
		}()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		// interrupted; the caller still saves on the way out
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, syncTick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case conflictMsg:
		if m.conflict != nil {
			m.conflict.answer(surface.KeepLocal)
		}
		m.conflict = &msg
		return m, nil

	case tea.KeyMsg:
		if m.conflict != nil {
			return m.answerConflict(msg)
		}

		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+o":
			if m.pane == paneChat {
				m.pane = paneOutline
			} else {
				m.pane = paneChat
			}
			m.refreshContent()
			return m, nil

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.sending {
				return m, nil
			}
			m.input.SetValue("")
			m.err = nil

			if strings.HasPrefix(text, "/") {
				return m, m.runCommand(text)
			}

			m.sending = true
			m.status = ""
			return m, tea.Batch(m.spinner.Tick, sendMessage(m.surface, text))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-8)
		m.resize()

	case ViewChangedMsg:
		m.view = msg.View
		m.refreshContent()
		return m, nil

	case RemoteChangeMsg:
		return m, syncSurface(m.surface)

	case replyMsg:
		m.sending = false
		m.err = msg.err
		m.view = m.surface.View()
		m.refreshContent()
		return m, nil

	case commandDoneMsg:
		m.status = msg.status
		m.err = msg.err
		m.view = m.surface.View()
		m.refreshContent()
		return m, nil

	case syncTickMsg:
		return m, tea.Batch(syncSurface(m.surface), syncTick())

	case spinner.TickMsg:
		if m.sending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// while a conflict is open only its answers are accepted
func (m *Model) answerConflict(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var decision surface.Decision
	switch msg.String() {
	case "k", "K":
		decision = surface.KeepLocal
	case "d", "D":
		decision = surface.DiscardLocal
	case "ctrl+c":
		m.conflict.answer(surface.KeepLocal)
		m.conflict = nil
		return m, tea.Quit
	default:
		return m, nil
	}

	m.conflict.answer(decision)
	m.conflict = nil
	if decision == surface.KeepLocal {
		m.status = "kept your changes"
	} else {
		m.status = "discarded your changes"
	}
	return m, nil
}

// sizes the transcript pane between header and input
func (m *Model) resize() {
	height := max(3, m.height-7)
	width := max(20, m.width-2)

	if !m.ready {
		m.viewport = viewport.New(width, height)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = height
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(20, width-4)),
	)
	if err == nil {
		m.renderer = renderer
	}

	m.refreshContent()
}

func (m *Model) refreshContent() {
	if !m.ready {
		return
	}

	if m.pane == paneOutline {
		m.viewport.SetContent(renderOutline(m.view.Draft))
		m.viewport.GotoTop()
		return
	}

	m.viewport.SetContent(renderTranscript(m.view.Transcript, m.renderer))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if !m.ready {
		return "\n  loading..."
	}

	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(borderStyle.Width(max(10, m.width-4)).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusLine())

	return b.String()
}

func (m *Model) header() string {
	title := m.view.Title
	if title == "" {
		title = "untitled course"
	}

	left := titleStyle.Render(title)
	if m.opts.Mode != "" {
		left += infoStyle.Render("  " + m.opts.Mode)
	}
	right := indicator(m.view.State)

	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) statusLine() string {
	switch {
	case m.conflict != nil:
		return warnStyle.Render(conflictQuestion(m.conflict.conflict))
	case m.sending:
		return m.spinner.View() + infoStyle.Render(" the assistant is writing...")
	case m.err != nil:
		return errorStyle.Render("error: " + m.err.Error())
	case m.view.LoadErr != nil:
		return errorStyle.Render("could not load session, retrying: " + m.view.LoadErr.Error())
	case m.status != "":
		return infoStyle.Render(m.status)
	default:
		return helpStyle.Render("[enter] send  [ctrl+o] outline  /new /rename /open /save  [esc] quit")
	}
}

func syncTick() tea.Cmd {
	return tea.Tick(syncInterval, func(time.Time) tea.Msg { return syncTickMsg{} })
}

// a failed load is retried here; a session switched by another tab is
// picked up here
func syncSurface(s Surface) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if _, err := s.Sync(ctx); err != nil {
			return nil
		}
		return ViewChangedMsg{View: s.View()}
	}
}
