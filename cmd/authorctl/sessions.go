package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/coursepilot/server/internal/surface"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, create and switch authoring sessions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your sessions, most recently updated first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withTab(cmd, func(s *session) error {
					summaries, err := s.backend.gateway.ListSessions(cmd.Context())
					if err != nil {
						return err
					}

					active, _ := s.tab.Registry().GetActive()

					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
					fmt.Fprintln(w, "\tID\tTITLE\tUPDATED")
					for _, sum := range summaries {
						mark := ""
						if sum.ID == active {
							mark = "*"
						}
						title := sum.Title
						if title == "" {
							title = "(untitled)"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, sum.ID, title, sum.LastUpdated.Local().Format(time.DateTime))
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "new [title]",
			Short: "Create a session and make it active in every tab",
			Args:  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withTab(cmd, func(s *session) error {
					id, err := s.tab.Surface(surface.KindEditor).New(cmd.Context(), strings.Join(args, " "))
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "use <id>",
			Short: "Make a session active in every tab",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withTab(cmd, func(s *session) error {
					// an unknown id must not become every tab's active session
					if _, err := s.backend.gateway.LoadSession(cmd.Context(), args[0]); err != nil {
						return err
					}

					// loads synchronously through the reconciler
					s.tab.Surface(surface.KindEditor).Open(args[0])

					if s.tab.Tracker().SessionID() != args[0] || s.tab.Tracker().Snapshot() == nil {
						return fmt.Errorf("could not load session %s", args[0])
					}
					fmt.Fprintf(cmd.OutOrStdout(), "now editing %s\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rename <title>",
			Short: "Rename the active session",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSurface(cmd, surface.KindEditor, func(s *session, sf *surface.Adapter) error {
					return sf.Rename(cmd.Context(), strings.Join(args, " "))
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a session on the host",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withTab(cmd, func(s *session) error {
					if err := s.backend.gateway.DeleteSession(cmd.Context(), args[0]); err != nil {
						return err
					}

					if active, ok := s.tab.Registry().GetActive(); ok && active == args[0] {
						s.tab.Registry().Clear()
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
					return nil
				})
			},
		},
	)

	return cmd
}
