package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/events"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/logger"
)

type Kind string

const (
	KindEditor  Kind = "editor"
	KindPreview Kind = "preview"
	KindChat    Kind = "chat"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrNoGenerator     = errors.New("generation is not configured")
)

// View is what a surface renders: the working copy with lesson drafts laid
// over saved content, and the save indicator.
type View struct {
	SessionID  string
	Title      string
	Transcript []authoring.Message
	Draft      authoring.CourseStructure
	State      authoring.SaveState
	LoadErr    error
}

// Adapter is one UI surface's handle on the shared session state. All of
// its writes go through the dirty tracker or the draft cache.
type Adapter struct {
	kind       Kind
	deps       Deps
	reconciler *Reconciler

	mu        sync.Mutex
	sessionID string // identity the surface last rendered
	state     authoring.SaveState
	loadErr   error
	onChange  func(View)
	unsubs    []func()
}

func NewAdapter(kind Kind, deps Deps, reconciler *Reconciler) *Adapter {
	return &Adapter{
		kind:       kind,
		deps:       deps,
		reconciler: reconciler,
	}
}

func (a *Adapter) Kind() Kind {
	return a.kind
}

// OnChange registers fn to receive a fresh view whenever shared state the
// surface shows changes. fn runs on the goroutine that caused the change.
func (a *Adapter) OnChange(fn func(View)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// Activate binds the surface to the active session, creating one when the
// tab has none. Without a reachable host a temporary identifier is used
// until the first save creates the session.
func (a *Adapter) Activate(ctx context.Context) error {
	a.subscribe()

	d := a.deps

	// another tab may have switched since the last poll; the reconciler
	// puts that to the prompter when this tab holds unsaved work
	d.Registry.Poll()

	id, ok := d.Registry.GetActive()
	if !ok {
		var err error
		id, err = a.create(ctx, "")
		if err != nil {
			return err
		}
		// the registry broadcast loads it
		d.Registry.SetActive(id)
	} else if d.Tracker.SessionID() != id || d.Tracker.Snapshot() == nil {
		if err := a.reconciler.Switch(ctx, id, events.OriginRemote); err != nil {
			a.setLoaded(id, err)
			return fmt.Errorf("activate %s surface: %w", a.kind, err)
		}
	}

	a.setLoaded(d.Tracker.SessionID(), nil)
	logger.Debug("surface activated", "surface", string(a.kind), "session_id", a.SessionID())
	return nil
}

func (a *Adapter) create(ctx context.Context, title string) (string, error) {
	if a.deps.Gateway == nil {
		return authoring.NewTemporaryID(), nil
	}

	id, err := a.deps.Gateway.CreateSession(ctx, title)
	if err == nil {
		return id, nil
	}
	if authoring.Classify(err) == authoring.KindTransientIO {
		logger.Warn("host unreachable, using a temporary session", "error", err)
		return authoring.NewTemporaryID(), nil
	}
	return "", fmt.Errorf("create session: %w", err)
}

func (a *Adapter) subscribe() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unsubs != nil {
		return
	}

	bus := a.deps.Bus
	a.unsubs = []func(){
		bus.Subscribe(a.onLoaded, events.SessionLoaded),
		bus.Subscribe(a.onSaved, events.SessionSaved, events.DraftSaved),
		bus.Subscribe(a.onState, events.SaveStateChanged),
	}
}

// Close detaches the surface from the tab's events.
func (a *Adapter) Close() {
	a.mu.Lock()
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// surface-local state of the previous session is dropped here
func (a *Adapter) onLoaded(ev events.Event) {
	a.setLoaded(ev.SessionID, ev.Err)
	a.notify()
}

func (a *Adapter) setLoaded(id string, err error) {
	a.mu.Lock()
	a.sessionID = id
	a.loadErr = err
	a.state = a.deps.Tracker.State()
	a.mu.Unlock()
}

func (a *Adapter) onSaved(ev events.Event) {
	a.mu.Lock()
	mine := ev.SessionID == a.sessionID
	if mine && ev.Type == events.SessionSaved && !a.deps.Tracker.Dirty() {
		a.state = authoring.StateClean
	}
	a.mu.Unlock()

	if mine {
		a.notify()
	}
}

func (a *Adapter) onState(ev events.Event) {
	a.mu.Lock()
	a.state = ev.State
	a.mu.Unlock()
	a.notify()
}

func (a *Adapter) notify() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(a.View())
	}
}

// identity the surface is showing
func (a *Adapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// the save-state indicator
func (a *Adapter) Indicator() authoring.SaveState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// View reads the shared state afresh; it never serves a previous
// session's data.
func (a *Adapter) View() View {
	a.mu.Lock()
	v := View{
		SessionID: a.sessionID,
		State:     a.state,
		LoadErr:   a.loadErr,
	}
	a.mu.Unlock()

	snap := a.deps.Tracker.Snapshot()
	if snap == nil || snap.ID != v.SessionID {
		return v
	}

	v.Title = snap.Title
	v.Transcript = snap.Transcript
	v.Draft = snap.Draft
	if a.deps.Drafts.SessionID() == snap.ID {
		a.deps.Drafts.Overlay(&v.Draft)
	}
	return v
}

// Sync checks shared storage for an identity another tab set and retries
// a failed load. It reports whether the surface now shows another session.
func (a *Adapter) Sync(ctx context.Context) (bool, error) {
	before := a.SessionID()

	a.deps.Registry.Poll()

	a.mu.Lock()
	id, loadErr := a.sessionID, a.loadErr
	a.mu.Unlock()

	if loadErr != nil && id != "" {
		if err := a.reconciler.Load(ctx, id); err != nil {
			return false, err
		}
	}

	return a.SessionID() != before, nil
}

// working copy for a mutation, which must belong to the surface's session
func (a *Adapter) current() (*authoring.Session, error) {
	snap := a.deps.Tracker.Snapshot()
	if snap == nil {
		return nil, ErrNoActiveSession
	}
	if id := a.SessionID(); id != "" && id != snap.ID {
		return nil, fmt.Errorf("surface shows %s but %s is active: %w", id, snap.ID, authoring.ErrIdentityConflict)
	}
	return snap, nil
}

// EditLesson records a lesson body edit as a draft.
func (a *Adapter) EditLesson(key authoring.DraftKey, content string) error {
	snap, err := a.current()
	if err != nil {
		return err
	}
	if !snap.Draft.HasLesson(key) {
		return fmt.Errorf("edit lesson %s: %w", key, authoring.ErrNotFound)
	}

	a.deps.Drafts.Set(key, content)
	return nil
}

// SaveLesson folds the lesson's draft into its saved content and saves
// the session now.
func (a *Adapter) SaveLesson(ctx context.Context, key authoring.DraftKey) error {
	snap, err := a.current()
	if err != nil {
		return err
	}

	content, ok := a.deps.Drafts.Get(key)
	if !ok {
		return nil
	}

	err = a.deps.Tracker.UpdateDraft(func(c *authoring.CourseStructure) {
		if l, ok := c.Lesson(key); ok {
			l.Content = content
			l.DraftContent = ""
		}
	})
	if err != nil {
		return err
	}

	a.deps.Drafts.Clear(key)

	// an empty draft removes the host copy so a reload cannot resurrect it
	if a.deps.Gateway != nil && !authoring.IsTemporaryID(snap.ID) {
		if err := a.deps.Gateway.SaveDraft(ctx, snap.ID, key, ""); err != nil {
			logger.Warn("failed to clear saved draft on host", "session_id", snap.ID, "key", key.String(), "error", err)
		}
	}

	return a.deps.Tracker.Flush(ctx)
}

// EditStructure applies fn to the course structure.
func (a *Adapter) EditStructure(fn func(*authoring.CourseStructure)) error {
	if _, err := a.current(); err != nil {
		return err
	}
	return a.deps.Tracker.UpdateDraft(fn)
}

// Send runs one chat turn. The author's message is kept even when
// generation fails; an updated draft in the reply is merged like a local
// edit.
func (a *Adapter) Send(ctx context.Context, message string) (*authoring.Message, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is empty")
	}
	if a.deps.Generator == nil {
		return nil, ErrNoGenerator
	}

	snap, err := a.current()
	if err != nil {
		return nil, err
	}

	user := authoring.Message{Role: authoring.RoleUser, Content: message, Timestamp: time.Now().UTC()}
	if err := a.deps.Tracker.AppendMessage(user); err != nil {
		return nil, err
	}

	draft := snap.Draft.Clone()
	a.deps.Drafts.Overlay(&draft)

	resp, err := a.deps.Generator.Generate(ctx, gateway.GenerateRequest{
		SessionID:  snap.ID,
		Message:    message,
		Transcript: snap.Transcript,
		Draft:      draft,
	})
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	// the author may have switched sessions while waiting
	if a.deps.Tracker.SessionID() != snap.ID {
		return nil, fmt.Errorf("session changed during generation: %w", authoring.ErrIdentityConflict)
	}

	reply := authoring.Message{Role: authoring.RoleAssistant, Content: resp.Message, Timestamp: time.Now().UTC()}
	if err := a.deps.Tracker.AppendMessage(reply); err != nil {
		return nil, err
	}

	if resp.UpdatedDraft != nil {
		if err := a.deps.Tracker.ReplaceDraft(*resp.UpdatedDraft); err != nil {
			return nil, err
		}
	}

	return &reply, nil
}

// Rename changes the session title on the host and in the working copy.
func (a *Adapter) Rename(ctx context.Context, title string) error {
	snap, err := a.current()
	if err != nil {
		return err
	}

	if a.deps.Gateway != nil && !authoring.IsTemporaryID(snap.ID) {
		if err := a.deps.Gateway.RenameSession(ctx, snap.ID, title); err != nil {
			return err
		}
	}

	a.deps.Tracker.SetTitle(title)
	a.notify()
	return nil
}

// Open makes sessionID the active session of the tab.
func (a *Adapter) Open(sessionID string) {
	a.deps.Registry.SetActive(sessionID)
}

// New creates a session and makes it active.
func (a *Adapter) New(ctx context.Context, title string) (string, error) {
	id, err := a.create(ctx, title)
	if err != nil {
		return "", err
	}

	a.deps.Registry.SetActive(id)
	if title != "" && authoring.IsTemporaryID(id) {
		a.deps.Tracker.SetTitle(title)
	}
	return id, nil
}
