package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"

	"codeberg.org/coursepilot/server/internal/surface"
)

// asks on the terminal which session to keep when another tab switched
// sessions under unsaved edits; without a terminal local edits are kept
type terminalPrompter struct {
	in  io.Reader
	out io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) surface.Prompter {
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(f.Fd()) {
		return surface.KeepLocalPrompter
	}
	return &terminalPrompter{in: in, out: out}
}

func (p *terminalPrompter) ResolveConflict(ctx context.Context, c surface.Conflict) surface.Decision {
	return askConflict(ctx, p.in, p.out, c)
}

func askConflict(ctx context.Context, in io.Reader, out io.Writer, c surface.Conflict) surface.Decision {
	fmt.Fprintf(out, "\nanother tab switched to session %s, but %s has unsaved changes.\n", c.RemoteID, c.LocalID)
	fmt.Fprint(out, "[k]eep editing this session or [d]iscard changes and follow? [k] ")

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case <-ctx.Done():
		return surface.KeepLocal
	case a := <-answer:
		if a == "d" || a == "discard" {
			return surface.DiscardLocal
		}
		return surface.KeepLocal
	}
}
