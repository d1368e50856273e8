// Package persister owns a tab's working copy of the active session and
// coalesces bursts of mutations into single saves.
package persister

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/events"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/logger"
)

const (
	DefaultDebounce      = time.Second
	DefaultRetryInterval = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultSaveTimeout   = 30 * time.Second
)

var ErrNoSession = errors.New("no session loaded")

// replaces a temporary session identifier once the host assigned one
type Promoter interface {
	Promote(tempID, durableID string) bool
}

type Options struct {
	Gateway  gateway.Gateway
	Bus      *events.Bus
	Promoter Promoter

	Debounce      time.Duration
	RetryInterval time.Duration
	MaxRetries    int
	SaveTimeout   time.Duration
}

// Tracker holds the dirty flag of one tab. Any surface may mark it dirty;
// only the tracker's own save path clears it, and only once the host
// confirmed a save of a state at least as new as the latest mutation.
type Tracker struct {
	gw       gateway.Gateway
	bus      *events.Bus
	promoter Promoter

	debounce      time.Duration
	retryInterval time.Duration
	maxRetries    int
	saveTimeout   time.Duration

	mu      sync.Mutex
	session *authoring.Session
	dirty   bool
	gen     uint64 // bumped on every mutation
	epoch   uint64 // bumped on every Load
	state   authoring.SaveState
	lastErr error
	timer   *time.Timer
	retries int
	closed  bool

	// one save in flight at a time
	flushMu sync.Mutex
}

func New(opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}

	return &Tracker{
		gw:            opts.Gateway,
		bus:           opts.Bus,
		promoter:      opts.Promoter,
		debounce:      opts.Debounce,
		retryInterval: opts.RetryInterval,
		maxRetries:    opts.MaxRetries,
		saveTimeout:   opts.SaveTimeout,
	}
}

// Load installs s as the clean working copy, dropping any pending save of
// the previous one. A nil session unloads.
func (t *Tracker) Load(s *authoring.Session) {
	t.mu.Lock()
	changed := t.loadLocked(s)
	ev := t.stateEventLocked()
	t.mu.Unlock()

	if changed {
		t.bus.Publish(ev)
	}
}

func (t *Tracker) loadLocked(s *authoring.Session) bool {
	t.stopTimerLocked()
	if s != nil {
		t.session = s.Clone()
	} else {
		t.session = nil
	}
	t.dirty = false
	t.epoch++
	t.retries = 0
	return t.setStateLocked(authoring.StateClean, nil)
}

// mutation counter of the working copy; compare with LoadIfUnchanged
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// LoadIfUnchanged installs s like Load, but only while the working copy is
// the same session, is clean and saw no mutation since gen was read.
func (t *Tracker) LoadIfUnchanged(s *authoring.Session, gen uint64) bool {
	t.mu.Lock()
	if s == nil || t.session == nil || t.session.ID != s.ID || t.dirty || t.gen != gen {
		t.mu.Unlock()
		return false
	}
	changed := t.loadLocked(s)
	ev := t.stateEventLocked()
	t.mu.Unlock()

	if changed {
		t.bus.Publish(ev)
	}
	return true
}

// returns a deep copy of the working copy, or nil when nothing is loaded
func (t *Tracker) Snapshot() *authoring.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return nil
	}
	return t.session.Clone()
}

// identifier of the working copy
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return ""
	}
	return t.session.ID
}

func (t *Tracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

func (t *Tracker) State() authoring.SaveState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// error of the last failed save, cleared by the next successful one
func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Tracker) AppendMessage(msg authoring.Message) error {
	return t.mutate(func(s *authoring.Session) {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		s.Transcript = append(s.Transcript, msg)
	})
}

// applies fn to the working draft in place
func (t *Tracker) UpdateDraft(fn func(*authoring.CourseStructure)) error {
	return t.mutate(func(s *authoring.Session) {
		fn(&s.Draft)
	})
}

func (t *Tracker) ReplaceDraft(draft authoring.CourseStructure) error {
	return t.mutate(func(s *authoring.Session) {
		s.Draft = draft.Clone()
	})
}

// updates the title without marking dirty; renames go to the host directly
func (t *Tracker) SetTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		t.session.Title = title
	}
}

func (t *Tracker) mutate(fn func(*authoring.Session)) error {
	t.mu.Lock()
	if t.session == nil {
		t.mu.Unlock()
		return ErrNoSession
	}
	fn(t.session)
	changed := t.markDirtyLocked()
	ev := t.stateEventLocked()
	t.mu.Unlock()

	if changed {
		t.bus.Publish(ev)
	}
	return nil
}

// MarkDirty flags unsaved state and restarts the coalescing timer, so a
// burst of calls results in one save after the burst settles.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	changed := t.markDirtyLocked()
	ev := t.stateEventLocked()
	t.mu.Unlock()

	if changed {
		t.bus.Publish(ev)
	}
}

func (t *Tracker) markDirtyLocked() bool {
	t.dirty = true
	t.gen++
	t.retries = 0

	if !t.closed {
		t.scheduleLocked(t.debounce)
	}

	if t.state == authoring.StateSaving {
		return false
	}
	return t.setStateLocked(authoring.StateDirty, nil)
}

func (t *Tracker) scheduleLocked(d time.Duration) {
	t.stopTimerLocked()
	t.timer = time.AfterFunc(d, t.onTimer)
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) onTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), t.saveTimeout)
	defer cancel()

	t.Flush(ctx) //nolint:errcheck // failures are logged, surfaced and retried
}

// Flush saves the working copy when it is dirty. A save started before a
// newer mutation completes but leaves the tracker dirty.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if !t.dirty || t.session == nil {
		t.mu.Unlock()
		return nil
	}

	snapshot := t.session.Clone()
	gen, epoch := t.gen, t.epoch
	t.stopTimerLocked()
	changed := t.setStateLocked(authoring.StateSaving, nil)
	ev := t.stateEventLocked()
	t.mu.Unlock()

	if changed {
		t.bus.Publish(ev)
	}

	err := t.save(ctx, snapshot, epoch)
	if err != nil {
		t.saveFailed(snapshot.ID, gen, epoch, err)
		return err
	}

	t.saveSucceeded(snapshot.ID, gen, epoch)
	return nil
}

func (t *Tracker) save(ctx context.Context, snapshot *authoring.Session, epoch uint64) error {
	if t.gw == nil {
		return fmt.Errorf("save session: no gateway configured")
	}

	if authoring.IsTemporaryID(snapshot.ID) {
		durableID, err := t.gw.CreateSession(ctx, snapshot.Title)
		if err != nil {
			return fmt.Errorf("create session for %s: %w", snapshot.ID, err)
		}

		t.mu.Lock()
		if t.epoch == epoch && t.session != nil && t.session.ID == snapshot.ID {
			t.session.ID = durableID
		}
		t.mu.Unlock()

		tempID := snapshot.ID
		snapshot.ID = durableID

		if t.promoter != nil {
			t.promoter.Promote(tempID, durableID)
		}
	}

	if err := t.gw.Save(ctx, snapshot.ID, snapshot.Transcript, snapshot.Draft); err != nil {
		return fmt.Errorf("save session %s: %w", snapshot.ID, err)
	}
	return nil
}

func (t *Tracker) saveSucceeded(sessionID string, gen, epoch uint64) {
	t.mu.Lock()
	current := t.epoch == epoch
	if current {
		if t.session != nil {
			t.session.LastSavedAt = time.Now().UTC()
		}
		t.retries = 0
		if t.gen == gen {
			t.dirty = false
		}
	}

	changed := false
	if current {
		next := authoring.StateClean
		if t.dirty {
			next = authoring.StateDirty
		}
		changed = t.setStateLocked(next, nil)
	}
	ev := t.stateEventLocked()
	t.mu.Unlock()

	logger.Debug("session saved", "session_id", sessionID)

	t.bus.Publish(events.Event{Type: events.SessionSaved, SessionID: sessionID})
	if changed {
		t.bus.Publish(ev)
	}
}

func (t *Tracker) saveFailed(sessionID string, gen, epoch uint64, err error) {
	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		logger.Warn("save of replaced session failed", "session_id", sessionID, "error", err)
		return
	}

	changed := t.setStateLocked(authoring.StateError, err)

	// a newer mutation already scheduled its own save
	retrying := false
	if !t.closed && t.gen == gen && t.retries < t.maxRetries {
		t.retries++
		retrying = true
		t.scheduleLocked(t.retryInterval)
	}
	attempt := t.retries
	ev := t.stateEventLocked()
	t.mu.Unlock()

	logger.Warn("session save failed",
		"session_id", sessionID,
		"kind", authoring.Classify(err).String(),
		"retrying", retrying,
		"attempt", attempt,
		"error", err,
	)

	if changed {
		t.bus.Publish(ev)
	}
}

// FlushSync performs a blocking save bounded by timeout, for teardown.
// It is best effort: the process may exit before the host confirms, and
// calling it on a clean tracker does nothing.
func (t *Tracker) FlushSync(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = t.saveTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return t.Flush(ctx)
}

// Close stops scheduling saves; pending state stays dirty.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.stopTimerLocked()
}

// caller holds t.mu; reports whether the state moved
func (t *Tracker) setStateLocked(s authoring.SaveState, err error) bool {
	if s != authoring.StateError {
		err = nil
	}
	if s == authoring.StateClean {
		t.lastErr = nil
	} else if err != nil {
		t.lastErr = err
	}

	if t.state == s {
		return false
	}
	t.state = s
	return true
}

func (t *Tracker) stateEventLocked() events.Event {
	ev := events.Event{
		Type:  events.SaveStateChanged,
		State: t.state,
	}
	if t.session != nil {
		ev.SessionID = t.session.ID
	}
	if t.state == authoring.StateError {
		ev.Err = t.lastErr
	}
	return ev
}
