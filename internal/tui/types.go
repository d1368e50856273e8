package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/surface"
)

const (
	requestTimeout = 90 * time.Second
	syncInterval   = 2 * time.Second
)

// the chat surface as the TUI drives it; *surface.Adapter implements it
type Surface interface {
	View() surface.View
	OnChange(fn func(surface.View))
	Send(ctx context.Context, message string) (*authoring.Message, error)
	Rename(ctx context.Context, title string) error
	New(ctx context.Context, title string) (string, error)
	Open(sessionID string)
	Sync(ctx context.Context) (bool, error)
}

type Options struct {
	// saves everything unsaved now; bound to /save
	Save func(ctx context.Context) error

	// shown in the header, e.g. "offline"
	Mode string

	// answers identity conflicts while the program runs; may be nil
	Prompter *Prompter
}

// what the main pane shows
type pane int

const (
	paneChat pane = iota
	paneOutline
)

// main TUI application model
type Model struct {
	surface Surface
	opts    Options

	view    surface.View
	pane    pane
	width   int
	height  int
	status  string
	err     error
	sending bool

	// an identity conflict awaiting the author's answer
	conflict *conflictMsg

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	ready    bool
}

// sent when shared session state changed
type ViewChangedMsg struct {
	View surface.View
}

// sent when the host reports a save by another client
type RemoteChangeMsg struct {
	SessionID string
}

// sent when a chat turn completes
type replyMsg struct {
	reply *authoring.Message
	err   error
}

// sent when a slash command completes
type commandDoneMsg struct {
	status string
	err    error
}

type syncTickMsg struct{}
