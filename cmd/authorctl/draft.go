package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/surface"
)

func newDraftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Read and write lesson drafts of the active session",
	}

	var save bool

	set := &cobra.Command{
		Use:   "set <section::lesson> <content|->",
		Short: "Write a lesson draft; - reads the content from stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := authoring.ParseDraftKey(args[0])
			if err != nil {
				return err
			}

			content := args[1]
			if content == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				content = strings.TrimRight(string(raw), "\n")
			}

			return a.withSurface(cmd, surface.KindEditor, func(s *session, sf *surface.Adapter) error {
				if err := sf.EditLesson(key, content); err != nil {
					return err
				}
				if save {
					return sf.SaveLesson(cmd.Context(), key)
				}
				return nil
			})
		},
	}
	set.Flags().BoolVar(&save, "save", false, "fold the draft into the lesson and save the session")

	get := &cobra.Command{
		Use:   "get <section::lesson>",
		Short: "Print a lesson's content, unsaved draft included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := authoring.ParseDraftKey(args[0])
			if err != nil {
				return err
			}

			return a.withSurface(cmd, surface.KindPreview, func(s *session, sf *surface.Adapter) error {
				v := sf.View()
				lesson, ok := v.Draft.Lesson(key)
				if !ok {
					return fmt.Errorf("lesson %s: %w", key, authoring.ErrNotFound)
				}
				fmt.Fprintln(cmd.OutOrStdout(), lesson.EffectiveContent())
				return nil
			})
		},
	}

	cmd.AddCommand(set, get)
	return cmd
}
