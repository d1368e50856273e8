// Package tab wires the sync components of one client process into a
// single object with an explicit lifecycle, so nothing lives in package
// globals and tests can run several tabs side by side.
package tab

import (
	"context"
	"errors"
	"sync"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/drafts"
	"codeberg.org/coursepilot/server/internal/events"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/identity"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/persister"
	"codeberg.org/coursepilot/server/internal/surface"
	"codeberg.org/coursepilot/server/internal/tabstore"
)

const DefaultTeardownTimeout = 5 * time.Second

type Options struct {
	Gateway   gateway.Gateway
	Generator gateway.Generator
	Store     tabstore.Store
	Prompter  surface.Prompter

	Debounce        time.Duration
	PollInterval    time.Duration
	RetryInterval   time.Duration
	MaxRetries      int
	DraftLimit      int
	LoadTimeout     time.Duration
	TeardownTimeout time.Duration
}

type Tab struct {
	opts  Options
	bus   *events.Bus
	store *tabstore.Fallback

	registry   *identity.Registry
	tracker    *persister.Tracker
	drafts     *drafts.Cache
	reconciler *surface.Reconciler

	mu       sync.Mutex
	surfaces map[surface.Kind]*surface.Adapter
	started  bool
}

func New(opts Options) *Tab {
	if opts.Store == nil {
		opts.Store = tabstore.NewMemoryStore(tabstore.DefaultQuotaBytes)
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}

	t := &Tab{
		opts:     opts,
		bus:      events.NewBus(),
		store:    tabstore.NewFallback(opts.Store),
		surfaces: make(map[surface.Kind]*surface.Adapter),
	}
	t.build()
	return t
}

func (t *Tab) build() {
	o := t.opts

	t.registry = identity.New(identity.Options{
		Store:        t.store,
		Bus:          t.bus,
		PollInterval: o.PollInterval,
	})

	t.tracker = persister.New(persister.Options{
		Gateway:       o.Gateway,
		Bus:           t.bus,
		Promoter:      t.registry,
		Debounce:      o.Debounce,
		RetryInterval: o.RetryInterval,
		MaxRetries:    o.MaxRetries,
	})

	t.drafts = drafts.New(drafts.Options{
		Store:         t.store,
		Gateway:       o.Gateway,
		Tracker:       t.tracker,
		Bus:           t.bus,
		Limit:         o.DraftLimit,
		Debounce:      o.Debounce,
		RetryInterval: o.RetryInterval,
		MaxRetries:    o.MaxRetries,
	})

	t.reconciler = surface.NewReconciler(t.deps())
}

func (t *Tab) deps() surface.Deps {
	return surface.Deps{
		Registry:    t.registry,
		Tracker:     t.tracker,
		Drafts:      t.drafts,
		Gateway:     t.opts.Gateway,
		Generator:   t.opts.Generator,
		Bus:         t.bus,
		Prompter:    t.opts.Prompter,
		LoadTimeout: t.opts.LoadTimeout,
	}
}

// Init starts identity tracking and loads the persisted active session,
// if any. A failed load is logged; surfaces retry through Sync.
func (t *Tab) Init(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	t.reconciler.Start()
	t.registry.Init(ctx)

	if id, ok := t.registry.GetActive(); ok {
		if err := t.reconciler.Load(ctx, id); err != nil {
			logger.Warn("failed to load active session", "session_id", id, "error", err)
		}
	}

	return nil
}

// Surface returns the adapter for kind, creating it on first use.
func (t *Tab) Surface(kind surface.Kind) *surface.Adapter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.surfaces[kind]; ok {
		return a
	}
	a := surface.NewAdapter(kind, t.deps(), t.reconciler)
	t.surfaces[kind] = a
	return a
}

// Refresh reloads the active session after another client saved it. It
// does nothing while the tab has unsaved work, or gains some during the
// fetch, so local edits are never replaced by the host copy.
func (t *Tab) Refresh(ctx context.Context) (bool, error) {
	id := t.tracker.SessionID()
	if id == "" || authoring.IsTemporaryID(id) || t.tracker.Dirty() || t.drafts.HasPending() {
		return false, nil
	}

	return t.reconciler.Refresh(ctx, id)
}

// Teardown makes a best-effort blocking save of everything unsaved and
// stops the tab. The process may still exit before the host confirms.
func (t *Tab) Teardown() error {
	timeout := t.opts.TeardownTimeout

	var errs []error
	if err := t.tracker.FlushSync(timeout); err != nil {
		errs = append(errs, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.drafts.FlushPending(ctx); err != nil {
		errs = append(errs, err)
	}

	t.stop()
	return errors.Join(errs...)
}

// Reset discards all in-memory state without saving and rebuilds the
// components; durable storage is left as is.
func (t *Tab) Reset() {
	t.stop()

	t.mu.Lock()
	t.bus.Reset()
	t.build()
	t.mu.Unlock()
}

func (t *Tab) stop() {
	t.mu.Lock()
	surfaces := t.surfaces
	t.surfaces = make(map[surface.Kind]*surface.Adapter)
	t.started = false
	t.mu.Unlock()

	for _, a := range surfaces {
		a.Close()
	}

	t.reconciler.Stop()
	t.tracker.Close()
	t.drafts.Close()
	t.registry.Reset()
}

func (t *Tab) Registry() *identity.Registry { return t.registry }
func (t *Tab) Tracker() *persister.Tracker  { return t.tracker }
func (t *Tab) Drafts() *drafts.Cache        { return t.drafts }
func (t *Tab) Bus() *events.Bus             { return t.bus }

// reports whether durable tab storage was lost and state is memory-only
func (t *Tab) Degraded() bool {
	return t.store.Degraded() || t.registry.Degraded()
}
