package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func sendMessage(s Surface, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		reply, err := s.Send(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

// runs a slash command typed into the input
func (m *Model) runCommand(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	s := m.surface

	switch name {
	case "new":
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			id, err := s.New(ctx, arg)
			if err != nil {
				return commandDoneMsg{err: err}
			}
			return commandDoneMsg{status: "started session " + id}
		}

	case "rename":
		if arg == "" {
			return done("", fmt.Errorf("usage: /rename <title>"))
		}
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := s.Rename(ctx, arg); err != nil {
				return commandDoneMsg{err: err}
			}
			return commandDoneMsg{status: "renamed to " + arg}
		}

	case "open":
		if arg == "" {
			return done("", fmt.Errorf("usage: /open <session id>"))
		}
		return func() tea.Msg {
			s.Open(arg)
			return commandDoneMsg{status: "opened " + arg}
		}

	case "save":
		if m.opts.Save == nil {
			return done("nothing to save", nil)
		}
		save := m.opts.Save
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := save(ctx); err != nil {
				return commandDoneMsg{err: err}
			}
			return commandDoneMsg{status: "saved"}
		}

	case "quit", "exit":
		return tea.Quit

	default:
		return done("", fmt.Errorf("unknown command /%s", name))
	}
}

func done(status string, err error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{status: status, err: err}
	}
}
