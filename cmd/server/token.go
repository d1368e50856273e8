package main

import (
	"flag"
	"fmt"
	"io"

	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/config"
)

// issues a bearer token for an author; the host platform normally does
// this after its own login flow
func runToken(cfg *config.ServerConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "author id")
	email := fs.String("email", "", "author email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	token, err := signer.Generate(*userID, *email)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
