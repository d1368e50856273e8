// Package surface connects the UI surfaces of a tab (editor, inline
// preview, chat) to the shared session state. Surfaces never hold the
// state themselves and never touch durable storage.
package surface

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
)

const DefaultLoadTimeout = 15 * time.Second

// shared components of one tab
type Deps struct {
	Registry  *identity.Registry
	Tracker   *persister.Tracker
	Drafts    *drafts.Cache
	Gateway   gateway.Gateway
	Generator gateway.Generator
	Bus       *events.Bus
	Prompter  Prompter

	LoadTimeout time.Duration
}

// Reconciler is the one subscriber that reloads the tab's shared state
// when the active identity changes, then announces session-loaded to the
// surfaces.
type Reconciler struct {
	deps Deps

	// serializes reloads
	loadMu sync.Mutex
	unsub  func()
}

func NewReconciler(deps Deps) *Reconciler {
	if deps.LoadTimeout <= 0 {
		deps.LoadTimeout = DefaultLoadTimeout
	}
	if deps.Prompter == nil {
		deps.Prompter = KeepLocalPrompter
	}
	return &Reconciler{deps: deps}
}

func (r *Reconciler) Start() {
	if r.unsub != nil {
		return
	}
	r.unsub = r.deps.Bus.Subscribe(r.onSessionChanged, events.SessionChanged)
}

func (r *Reconciler) Stop() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

func (r *Reconciler) onSessionChanged(ev events.Event) {
	ctx := context.Background()
	d := r.deps

	// same session under its durable name; surfaces keep their state
	if ev.Promoted {
		d.Drafts.Rebind(ev.PreviousID, ev.SessionID)
		d.Bus.Publish(events.Event{Type: events.SessionLoaded, SessionID: ev.SessionID, PreviousID: ev.PreviousID, Promoted: true})
		return
	}

	if err := r.Switch(ctx, ev.SessionID, ev.Origin); err != nil {
		logger.Warn("failed to reload session after identity change",
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}

// Switch moves the tab to sessionID. Unsaved work is saved before leaving
// by choice; a change made by another tab while this one holds unsaved
// work is put to the prompter first, and keeping the local session makes
// it active again everywhere.
func (r *Reconciler) Switch(ctx context.Context, sessionID string, origin events.Origin) error {
	d := r.deps
	localID := d.Tracker.SessionID()

	// re-assertion of what is already loaded
	if sessionID != "" && sessionID == localID && d.Drafts.SessionID() == localID && d.Tracker.Snapshot() != nil {
		return nil
	}

	dirty := d.Tracker.Dirty()
	pending := d.Drafts.HasPending()

	if origin == events.OriginRemote && localID != "" && (dirty || pending) {
		decision := d.Prompter.ResolveConflict(ctx, Conflict{
			LocalID:       localID,
			RemoteID:      sessionID,
			Dirty:         dirty,
			PendingDrafts: pending,
		})

		// bounds the I/O below, not the author's answer
		ctx, cancel := context.WithTimeout(ctx, d.LoadTimeout)
		defer cancel()

		logger.Info("resolved session identity conflict",
			"local_id", localID,
			"remote_id", sessionID,
			"decision", decision.String(),
		)

		if decision == KeepLocal {
			// making it active again brings the other tabs back to it
			d.Registry.SetActive(localID)
			r.flush(ctx)
			return nil
		}

		// journal included, so reopening does not replay them
		d.Drafts.Discard(localID)
		return r.Load(ctx, sessionID)
	}

	ctx, cancel := context.WithTimeout(ctx, d.LoadTimeout)
	defer cancel()

	// leaving a session by choice saves it first
	if localID != "" && (dirty || pending) {
		r.flush(ctx)
	}
	return r.Load(ctx, sessionID)
}

func (r *Reconciler) flush(ctx context.Context) {
	if err := r.deps.Tracker.Flush(ctx); err != nil {
		logger.Warn("failed to save session before switching", "error", err)
	}
	if err := r.deps.Drafts.FlushPending(ctx); err != nil {
		logger.Warn("failed to save drafts before switching", "error", err)
	}
}

// Load replaces the tab's working copy and drafts with those of sessionID.
// A session the host does not know starts fresh; any other failure leaves
// the tab unloaded so a later Sync can retry.
func (r *Reconciler) Load(ctx context.Context, sessionID string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	d := r.deps

	if sessionID == "" {
		d.Tracker.Load(nil)
		d.Drafts.Reset("")
		d.Bus.Publish(events.Event{Type: events.SessionLoaded})
		return nil
	}

	session, err := r.fetch(ctx, sessionID)
	if err != nil {
		d.Tracker.Load(nil)
		d.Drafts.Reset(sessionID)
		d.Bus.Publish(events.Event{Type: events.SessionLoaded, SessionID: sessionID, Err: err})
		return err
	}

	d.Tracker.Load(session)
	d.Drafts.Reset(sessionID)

	if _, err := d.Drafts.LoadAll(ctx, sessionID); err != nil {
		// the journal part is merged; host drafts arrive on the next load
		logger.Warn("failed to load lesson drafts", "session_id", sessionID, "error", err)
	}

	d.Bus.Publish(events.Event{Type: events.SessionLoaded, SessionID: sessionID})
	return nil
}

// Refresh reinstalls the host copy of sessionID. It reports false without
// touching the tab when anything was edited while the copy was fetched.
func (r *Reconciler) Refresh(ctx context.Context, sessionID string) (bool, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	d := r.deps
	gen := d.Tracker.Generation()

	session, err := r.fetch(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if d.Drafts.HasPending() || !d.Tracker.LoadIfUnchanged(session, gen) {
		logger.Debug("kept local edits made during refresh", "session_id", sessionID)
		return false, nil
	}
	d.Drafts.Reset(sessionID)

	if _, err := d.Drafts.LoadAll(ctx, sessionID); err != nil {
		logger.Warn("failed to load lesson drafts", "session_id", sessionID, "error", err)
	}

	d.Bus.Publish(events.Event{Type: events.SessionLoaded, SessionID: sessionID})
	return true, nil
}

func (r *Reconciler) fetch(ctx context.Context, sessionID string) (*authoring.Session, error) {
	if authoring.IsTemporaryID(sessionID) || r.deps.Gateway == nil {
		return authoring.NewSession(sessionID), nil
	}

	session, err := r.deps.Gateway.LoadSession(ctx, sessionID)
	if errors.Is(err, authoring.ErrNotFound) {
		logger.Info("session not found on host, starting fresh", "session_id", sessionID)
		return authoring.NewSession(sessionID), nil
	}
	if err != nil {
		return nil, err
	}

	session.ID = sessionID
	return session, nil
}
