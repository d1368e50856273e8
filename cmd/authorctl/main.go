// authorctl is the command-line client of a course authoring session. Every
// invocation is one tab: it shares the active session and unsaved drafts
// with the other tabs of the profile through local storage.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// closing the terminal still saves on the way out
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
