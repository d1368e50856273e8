// Package identity tracks which session is active in a tab and keeps tabs
// of the same profile converging on it through shared durable storage.
package identity

import (
	"context"
	"sync"
	"time"

	"codeberg.org/coursepilot/server/internal/events"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/tabstore"
)

const DefaultPollInterval = 2 * time.Second

type Options struct {
	Store        tabstore.Store
	Bus          *events.Bus
	PollInterval time.Duration
}

// Registry is the single owner of the active session identifier of one
// tab. It is last-write-wins: setting a new identifier never merges state
// of the previous one.
type Registry struct {
	store        tabstore.Store
	bus          *events.Bus
	pollInterval time.Duration

	mu       sync.Mutex
	active   string
	degraded bool
	warnOnce *sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Registry {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Store == nil {
		opts.Store = tabstore.NewMemoryStore(0)
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}

	return &Registry{
		store:        opts.Store,
		bus:          opts.Bus,
		pollInterval: opts.PollInterval,
		warnOnce:     &sync.Once{},
	}
}

// Init adopts the persisted identifier without emitting an event and
// starts cross-tab change detection: a poll loop, plus a file watch when
// the store lives in a file.
func (r *Registry) Init(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}

	if id, ok := r.readDurable(); ok {
		r.active = id
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pollLoop(ctx)

	if w, ok := r.store.(tabstore.Watchable); ok && w.Path() != "" {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := tabstore.Watch(ctx, w.Path(), r.Poll); err != nil {
				logger.Debug("storage watch unavailable, relying on polling", "error", err)
			}
		}()
	}
}

// Reset stops change detection and forgets the in-memory identifier.
// Durable storage is left untouched so other tabs are unaffected.
func (r *Registry) Reset() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	r.active = ""
	r.degraded = false
	r.warnOnce = &sync.Once{}
	r.mu.Unlock()
}

func (r *Registry) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Poll()
		}
	}
}

// GetActive resolves the active identifier: durable value first, then the
// in-memory one.
func (r *Registry) GetActive() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.readDurable(); ok {
		return id, true
	}
	if r.active != "" {
		return r.active, true
	}
	return "", false
}

// SetActive makes id the active session and broadcasts session-changed.
// Setting the identifier that is already active does nothing.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	prev := r.active
	durable, hasDurable := r.readDurable()
	if prev == id && (!hasDurable || durable == id) {
		r.mu.Unlock()
		return
	}

	r.writeDurable(id)
	r.active = id
	r.mu.Unlock()

	r.bus.Publish(events.Event{
		Type:       events.SessionChanged,
		SessionID:  id,
		PreviousID: prev,
		Origin:     events.OriginLocal,
	})
}

// Promote replaces a temporary identifier with the durable one the host
// assigned. It reports false when tempID is no longer active.
func (r *Registry) Promote(tempID, durableID string) bool {
	r.mu.Lock()
	if r.active != tempID {
		r.mu.Unlock()
		return false
	}

	r.writeDurable(durableID)
	r.active = durableID
	r.mu.Unlock()

	r.bus.Publish(events.Event{
		Type:       events.SessionChanged,
		SessionID:  durableID,
		PreviousID: tempID,
		Origin:     events.OriginLocal,
		Promoted:   true,
	})
	return true
}

// Clear drops the active identifier, used when the active session is
// deleted.
func (r *Registry) Clear() {
	r.mu.Lock()
	prev := r.active
	if !r.degraded {
		if err := r.store.Delete(tabstore.KeyActiveSession); err != nil {
			r.degrade(err)
		}
	}
	r.active = ""
	r.mu.Unlock()

	if prev == "" {
		return
	}

	r.bus.Publish(events.Event{
		Type:       events.SessionChanged,
		PreviousID: prev,
		Origin:     events.OriginLocal,
	})
}

// Poll checks durable storage once and adopts an identifier written by
// another tab, broadcasting it as a remote change.
func (r *Registry) Poll() {
	r.mu.Lock()
	id, ok := r.readDurable()
	if !ok || id == r.active {
		r.mu.Unlock()
		return
	}

	prev := r.active
	r.active = id
	r.mu.Unlock()

	logger.Debug("active session changed by another tab", "session_id", id, "previous_id", prev)

	r.bus.Publish(events.Event{
		Type:       events.SessionChanged,
		SessionID:  id,
		PreviousID: prev,
		Origin:     events.OriginRemote,
	})
}

// reports whether the registry fell back to memory-only identity
func (r *Registry) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// caller holds r.mu
func (r *Registry) readDurable() (string, bool) {
	if r.degraded {
		return "", false
	}

	id, ok, err := r.store.Get(tabstore.KeyActiveSession)
	if err != nil {
		r.degrade(err)
		return "", false
	}
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// caller holds r.mu
func (r *Registry) writeDurable(id string) {
	if r.degraded {
		return
	}
	if err := r.store.Set(tabstore.KeyActiveSession, id); err != nil {
		r.degrade(err)
	}
}

// caller holds r.mu
func (r *Registry) degrade(err error) {
	r.degraded = true
	r.warnOnce.Do(func() {
		logger.Warn("session identity is memory-only and will not survive a restart", "error", err)
	})
}
