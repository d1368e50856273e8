package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/surface"
	"codeberg.org/coursepilot/server/internal/tui"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

const chatTimeout = 90 * time.Second

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive chat surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the terminal belongs to the program; logs go to a file
			logPath := filepath.Join(a.cfg.DataDir, "authorctl.log")
			if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer logFile.Close()
			logger.SetOutput(logFile)
			defer logger.SetOutput(os.Stderr)

			// stdin belongs to the program once it runs; until then the
			// terminal prompter still asks
			prompter := tui.NewPrompter(a.prompter)
			a.prompter = prompter

			return a.withSurface(cmd, surface.KindChat, func(s *session, sf *surface.Adapter) error {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				mode := ""
				var remote chan tui.RemoteChangeMsg
				if a.cfg.Offline {
					mode = "offline"
				} else {
					remote = make(chan tui.RemoteChangeMsg, 1)
					w := &ws.Watcher{BaseURL: a.cfg.APIURL, Token: a.cfg.Token}
					go watchActive(ctx, s.tab, w, a.clientID, a.cfg.PollInterval, remote)
				}

				return tui.Run(ctx, sf, tui.Options{
					Save: func(ctx context.Context) error {
						if err := s.tab.Tracker().Flush(ctx); err != nil {
							return err
						}
						return s.tab.Drafts().FlushPending(ctx)
					},
					Mode:     mode,
					Prompter: prompter,
				}, remote)
			})
		},
	}
}
