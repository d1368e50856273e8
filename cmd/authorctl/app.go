package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"codeberg.org/coursepilot/server/internal/config"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/surface"
	"codeberg.org/coursepilot/server/internal/tab"
	"codeberg.org/coursepilot/server/internal/tabstore"
)

// the host a command talks to
type backend struct {
	gateway   gateway.Gateway
	generator gateway.Generator
}

// state shared by the commands of one invocation
type app struct {
	cfg      *config.ClientConfig
	clientID string

	// replaced in tests; nil builds the REST or offline backend from cfg
	newBackend func(cfg *config.ClientConfig, clientID string) backend
	prompter   surface.Prompter
	in         io.Reader
}

func newRootCmd(a *app) *cobra.Command {
	if a == nil {
		a = &app{}
	}
	if a.in == nil {
		a.in = os.Stdin
	}

	var offline bool
	var dataDir string

	root := &cobra.Command{
		Use:           "authorctl",
		Short:         "Draft online courses with an AI assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg == nil {
				cfg, err := config.LoadClient()
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			if cmd.Flags().Changed("offline") {
				a.cfg.Offline = offline
			}
			if dataDir != "" {
				a.cfg.DataDir = dataDir
			}
			if a.clientID == "" {
				a.clientID = uuid.NewString()
			}
			if a.prompter == nil {
				a.prompter = newTerminalPrompter(a.in, cmd.ErrOrStderr())
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&offline, "offline", false, "keep sessions in process memory instead of the host")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory of the local tab storage")

	root.AddCommand(
		newSessionsCmd(a),
		newDraftCmd(a),
		newShowCmd(a),
		newChatCmd(a),
		newTUICmd(a),
	)

	return root
}

func (a *app) backend() backend {
	if a.newBackend != nil {
		return a.newBackend(a.cfg, a.clientID)
	}

	if a.cfg.Offline {
		return backend{gateway: gateway.NewMemory()}
	}

	client := gateway.NewRESTClient(gateway.RESTOptions{
		BaseURL:  a.cfg.APIURL,
		Token:    a.cfg.Token,
		ClientID: a.clientID,
		Timeout:  a.cfg.RequestTimeout,
	})
	return backend{gateway: client, generator: client}
}

// a started tab plus what closing it takes
type session struct {
	tab     *tab.Tab
	backend backend
	store   *tabstore.SQLiteStore
}

// opens this invocation's tab on the profile's shared storage
func (a *app) openTab(ctx context.Context) (*session, error) {
	b := a.backend()

	var store tabstore.Store
	sqlite, err := tabstore.OpenSQLite(a.cfg.StorePath(), a.cfg.StorageQuota)
	if err != nil {
		// the tab still works, just without sharing state with other tabs
		logger.Warn("local storage unavailable, using memory", "path", a.cfg.StorePath(), "error", err)
		store = tabstore.NewMemoryStore(a.cfg.StorageQuota)
	} else {
		store = sqlite
	}

	t := tab.New(tab.Options{
		Gateway:      b.gateway,
		Generator:    b.generator,
		Store:        store,
		Prompter:     a.prompter,
		Debounce:     a.cfg.Debounce,
		PollInterval: a.cfg.PollInterval,
		DraftLimit:   a.cfg.DraftLimit,
		LoadTimeout:  a.cfg.RequestTimeout,
	})

	if err := t.Init(ctx); err != nil {
		if sqlite != nil {
			sqlite.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		}
		return nil, fmt.Errorf("failed to start tab: %w", err)
	}

	return &session{tab: t, backend: b, store: sqlite}, nil
}

// saves everything unsaved and releases local storage
func (s *session) close() error {
	err := s.tab.Teardown()
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// runs fn against a fresh tab and saves before returning
func (a *app) withTab(cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := a.openTab(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to save before exit: %w", cerr)
		}
	}()

	if s.tab.Degraded() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: local storage unavailable, other tabs will not see this session")
	}

	return fn(s)
}

// runs fn against a surface bound to the active session, creating one
// when there is none
func (a *app) withSurface(cmd *cobra.Command, kind surface.Kind, fn func(s *session, sf *surface.Adapter) error) error {
	return a.withTab(cmd, func(s *session) error {
		sf := s.tab.Surface(kind)
		if err := sf.Activate(cmd.Context()); err != nil {
			return err
		}
		return fn(s, sf)
	})
}
