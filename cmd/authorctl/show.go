package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"codeberg.org/coursepilot/server/internal/surface"
)

func newShowCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active session's outline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSurface(cmd, surface.KindPreview, func(s *session, sf *surface.Adapter) error {
				v := sf.View()
				out := cmd.OutOrStdout()

				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(v.Draft)
				}

				title := v.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Fprintf(out, "%s  [%s]  %s\n", title, v.SessionID, v.State)

				for i, section := range v.Draft.Sections {
					fmt.Fprintf(out, "%d. %s\n", i+1, section.Title)
					for j, lesson := range section.Lessons {
						mark := ""
						if lesson.DraftContent != "" {
							mark = " (draft)"
						}
						fmt.Fprintf(out, "   %d::%d %s [%s]%s\n", i, j, lesson.Title, lesson.Type, mark)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outline as JSON")
	return cmd
}
