package tui

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"codeberg.org/coursepilot/server/internal/surface"
)

// Prompter puts identity conflicts to the author inside the running
// program and waits for the answer. While no program runs, conflicts go
// to the fallback prompter.
type Prompter struct {
	fallback surface.Prompter

	mu      sync.Mutex
	program *tea.Program
	stopped chan struct{}
}

var _ surface.Prompter = (*Prompter)(nil)

// a nil fallback keeps the local session
func NewPrompter(fallback surface.Prompter) *Prompter {
	if fallback == nil {
		fallback = surface.KeepLocalPrompter
	}
	return &Prompter{fallback: fallback}
}

func (p *Prompter) attach(prog *tea.Program) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.program = prog
	p.stopped = make(chan struct{})
}

func (p *Prompter) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped != nil {
		close(p.stopped)
	}
	p.program = nil
	p.stopped = nil
}

// ResolveConflict blocks until the author answers. An abandoned prompt
// keeps the local session, so nothing unsaved is lost.
func (p *Prompter) ResolveConflict(ctx context.Context, c surface.Conflict) surface.Decision {
	p.mu.Lock()
	prog, stopped := p.program, p.stopped
	p.mu.Unlock()

	if prog == nil {
		return p.fallback.ResolveConflict(ctx, c)
	}

	reply := make(chan surface.Decision, 1)
	go prog.Send(conflictMsg{conflict: c, reply: reply})

	select {
	case d := <-reply:
		return d
	case <-stopped:
		return surface.KeepLocal
	case <-ctx.Done():
		return surface.KeepLocal
	}
}

// sent when another tab switched sessions while this one has unsaved work
type conflictMsg struct {
	conflict surface.Conflict
	reply    chan<- surface.Decision
}

func (m conflictMsg) answer(d surface.Decision) {
	select {
	case m.reply <- d:
	default:
	}
}

func conflictQuestion(c surface.Conflict) string {
	what := "unsaved changes"
	if c.PendingDrafts && !c.Dirty {
		what = "unsaved lesson edits"
	}
	target := c.RemoteID
	if target == "" {
		target = "no session"
	}
	return fmt.Sprintf("another tab switched to %s while %s has %s.  [k] keep mine  [d] discard mine", target, c.LocalID, what)
}
