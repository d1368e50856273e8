package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codeberg.org/coursepilot/server/internal/surface"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the assistant and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSurface(cmd, surface.KindChat, func(s *session, sf *surface.Adapter) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), chatTimeout)
				defer cancel()

				reply, err := sf.Send(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
				return nil
			})
		},
	}
}
