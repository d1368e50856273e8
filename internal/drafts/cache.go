// Package drafts holds per-lesson content drafts of the active session.
//
// Edits land in memory immediately, are journaled to durable tab storage
// until the host confirms them, and are sent to the host by a per-lesson
// debounced save that is independent of the whole-session save.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/events"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/tabstore"
)

const (
	DefaultLimit         = 300
	DefaultDebounce      = time.Second
	DefaultRetryInterval = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultSaveTimeout   = 30 * time.Second
)

// the part of the dirty tracker the cache needs
type DirtyMarker interface {
	MarkDirty()
}

type Options struct {
	Store   tabstore.Store
	Gateway gateway.Gateway
	Tracker DirtyMarker
	Bus     *events.Bus

	Limit         int
	Debounce      time.Duration
	RetryInterval time.Duration
	MaxRetries    int
	SaveTimeout   time.Duration
}

type entry struct {
	content string
	seq     uint64 // local write sequence; 0 for host copies
}

// an edit the host has not confirmed; kept outside the LRU so eviction
// never loses it
type pendingSave struct {
	content  string
	seq      uint64
	attempts int
}

type Cache struct {
	store   tabstore.Store
	gw      gateway.Gateway
	tracker DirtyMarker
	bus     *events.Bus

	debounce      time.Duration
	retryInterval time.Duration
	maxRetries    int
	saveTimeout   time.Duration

	mu        sync.Mutex
	sessionID string
	epoch     uint64
	seq       uint64
	entries   *lru.Cache
	index     map[authoring.DraftKey]*entry // mirrors entries for iteration
	pending   map[authoring.DraftKey]*pendingSave
	cleared   map[authoring.DraftKey]uint64 // seq of the last Clear per key
	timers    map[authoring.DraftKey]*time.Timer
	closed    bool

	warnOnce sync.Once
}

func New(opts Options) *Cache {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Store == nil {
		opts.Store = tabstore.NewMemoryStore(0)
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}

	c := &Cache{
		store:         opts.Store,
		gw:            opts.Gateway,
		tracker:       opts.Tracker,
		bus:           opts.Bus,
		debounce:      opts.Debounce,
		retryInterval: opts.RetryInterval,
		maxRetries:    opts.MaxRetries,
		saveTimeout:   opts.SaveTimeout,
		entries:       lru.New(opts.Limit),
		index:         make(map[authoring.DraftKey]*entry),
		pending:       make(map[authoring.DraftKey]*pendingSave),
		cleared:       make(map[authoring.DraftKey]uint64),
		timers:        make(map[authoring.DraftKey]*time.Timer),
	}
	c.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(c.index, key.(authoring.DraftKey))
	}
	return c
}

// caller holds c.mu
func (c *Cache) putLocked(key authoring.DraftKey, e *entry) {
	c.entries.Add(key, e)
	c.index[key] = e
}

// session whose drafts the cache currently holds
func (c *Cache) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// returns the draft for key; unconfirmed edits are found even after
// eviction from the LRU
func (c *Cache) Get(key authoring.DraftKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key authoring.DraftKey) (string, bool) {
	if v, ok := c.entries.Get(key); ok {
		return v.(*entry).content, true
	}
	if p, ok := c.pending[key]; ok {
		return p.content, true
	}
	return "", false
}

// Set records a local edit. It is readable at once, journaled durably,
// marks the tracker dirty and schedules a lesson-scoped save.
func (c *Cache) Set(key authoring.DraftKey, content string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.seq++
	seq := c.seq
	c.putLocked(key, &entry{content: content, seq: seq})
	c.pending[key] = &pendingSave{content: content, seq: seq}
	delete(c.cleared, key)
	c.scheduleLocked(key, c.debounce)

	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID != "" {
		c.mirrorSet(sessionID, key, content)
	}

	if c.tracker != nil {
		c.tracker.MarkDirty()
	}
}

// Clear drops the draft after an explicit save folded it into the lesson.
func (c *Cache) Clear(key authoring.DraftKey) {
	c.mu.Lock()
	c.entries.Remove(key)
	delete(c.pending, key)
	c.stopTimerLocked(key)
	c.seq++
	c.cleared[key] = c.seq
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID != "" {
		c.mirrorDelete(sessionID, key)
	}
}

// Reset empties the cache and binds it to sessionID. Unconfirmed edits of
// the previous session remain in durable storage.
func (c *Cache) Reset(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.timers {
		c.stopTimerLocked(key)
	}
	c.entries.Clear()
	c.pending = make(map[authoring.DraftKey]*pendingSave)
	c.cleared = make(map[authoring.DraftKey]uint64)
	c.sessionID = sessionID
	c.epoch++
}

// Discard drops every unconfirmed edit of sessionID, journal included, so
// reopening the session does not send them to the host.
func (c *Cache) Discard(sessionID string) {
	if sessionID == "" {
		return
	}

	c.mu.Lock()
	dropped := 0
	if c.sessionID == sessionID {
		for key := range c.pending {
			c.stopTimerLocked(key)
			c.entries.Remove(key)
			dropped++
		}
		c.pending = make(map[authoring.DraftKey]*pendingSave)
	}
	c.mu.Unlock()

	prefix := tabstore.DraftPrefix(sessionID)
	keys, err := c.store.Keys(prefix)
	if err != nil {
		c.warnMirror(err)
	}
	for _, k := range keys {
		if err := c.store.Delete(k); err != nil {
			c.warnMirror(err)
		}
	}

	logger.Debug("discarded unconfirmed drafts",
		"session_id", sessionID,
		"pending", dropped,
		"journaled", len(keys),
	)
}

// Rebind moves the cache and its journal from a temporary identifier to
// the durable one and releases saves held back while it was temporary.
func (c *Cache) Rebind(tempID, durableID string) {
	c.mu.Lock()
	if c.sessionID != tempID {
		c.mu.Unlock()
		return
	}
	c.sessionID = durableID

	keys := make([]authoring.DraftKey, 0, len(c.pending))
	for key := range c.pending {
		keys = append(keys, key)
		c.scheduleLocked(key, c.debounce)
	}
	c.mu.Unlock()

	journal := c.mirrorLoad(tempID)
	for key, content := range journal {
		c.mirrorSet(durableID, key, content)
		c.mirrorDelete(tempID, key)
	}

	logger.Debug("drafts rebound to durable session",
		"temp_id", tempID,
		"session_id", durableID,
		"pending", len(keys),
	)
}

// LoadAll merges the journal and then the host's drafts for sessionID into
// the cache. Entries edited or cleared locally after the load began, or
// still unconfirmed, are never overwritten.
func (c *Cache) LoadAll(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	c.mu.Lock()
	if c.sessionID != sessionID {
		c.mu.Unlock()
		return nil, fmt.Errorf("load drafts for %s: cache is bound to %q", sessionID, c.sessionID)
	}
	epoch, startSeq := c.epoch, c.seq
	c.mu.Unlock()

	// journal entries are edits some tab never got confirmed
	journal := c.mirrorLoad(sessionID)

	c.mu.Lock()
	if c.epoch == epoch {
		for key, content := range journal {
			if _, ok := c.getLocked(key); ok {
				continue
			}
			c.seq++
			c.putLocked(key, &entry{content: content, seq: c.seq})
			c.pending[key] = &pendingSave{content: content, seq: c.seq}
			c.scheduleLocked(key, c.debounce)
		}
	}
	c.mu.Unlock()

	var remote map[authoring.DraftKey]string
	if !authoring.IsTemporaryID(sessionID) && c.gw != nil {
		var err error
		remote, err = c.gw.LoadDrafts(ctx, sessionID)
		if err != nil && !errors.Is(err, authoring.ErrNotFound) {
			return c.Entries(), fmt.Errorf("load drafts for %s: %w", sessionID, err)
		}
	}

	c.mu.Lock()
	if c.epoch == epoch {
		for key, content := range remote {
			if _, ok := c.pending[key]; ok {
				continue
			}
			if v, ok := c.entries.Get(key); ok && v.(*entry).seq > startSeq {
				continue
			}
			// folded into the lesson while the load was in flight
			if seq, ok := c.cleared[key]; ok && seq > startSeq {
				continue
			}
			c.putLocked(key, &entry{content: content})
		}
	}
	c.mu.Unlock()

	return c.Entries(), nil
}

// returns every cached draft, unconfirmed edits included
func (c *Cache) Entries() map[authoring.DraftKey]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[authoring.DraftKey]string, len(c.index)+len(c.pending))
	for key, e := range c.index {
		out[key] = e.content
	}
	for key, p := range c.pending {
		out[key] = p.content
	}
	return out
}

// Overlay sets DraftContent on every lesson that has a cached draft.
func (c *Cache) Overlay(course *authoring.CourseStructure) {
	drafts := c.Entries()
	course.ApplyDrafts(drafts)
}

// reports whether any lesson edit awaits host confirmation
func (c *Cache) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// FlushPending saves every unconfirmed edit now, for teardown and before
// switching sessions.
func (c *Cache) FlushPending(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]authoring.DraftKey, 0, len(c.pending))
	for key := range c.pending {
		keys = append(keys, key)
		c.stopTimerLocked(key)
	}
	epoch := c.epoch
	c.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := c.saveKey(ctx, key, epoch, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stops every scheduled save; unconfirmed edits stay journaled
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for key := range c.timers {
		c.stopTimerLocked(key)
	}
}

func (c *Cache) scheduleLocked(key authoring.DraftKey, d time.Duration) {
	if c.closed {
		return
	}
	c.stopTimerLocked(key)

	epoch := c.epoch
	c.timers[key] = time.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
		defer cancel()
		c.saveKey(ctx, key, epoch, true) //nolint:errcheck // logged and retried
	})
}

func (c *Cache) stopTimerLocked(key authoring.DraftKey) {
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
}

func (c *Cache) saveKey(ctx context.Context, key authoring.DraftKey, epoch uint64, retry bool) error {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok || c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	content, seq := p.content, p.seq
	delete(c.timers, key)
	c.mu.Unlock()

	// held until the host assigns a durable identifier
	if authoring.IsTemporaryID(sessionID) || sessionID == "" || c.gw == nil {
		return nil
	}

	err := c.gw.SaveDraft(ctx, sessionID, key, content)

	c.mu.Lock()
	if c.epoch != epoch || c.sessionID != sessionID {
		c.mu.Unlock()
		return err
	}

	if err != nil {
		attempt := 0
		if p, ok := c.pending[key]; ok && p.seq == seq {
			p.attempts++
			attempt = p.attempts
			if retry && p.attempts <= c.maxRetries {
				c.scheduleLocked(key, c.retryInterval)
			}
		}
		c.mu.Unlock()

		logger.Warn("draft save failed",
			"session_id", sessionID,
			"key", key.String(),
			"attempt", attempt,
			"kind", authoring.Classify(err).String(),
			"error", err,
		)
		return fmt.Errorf("save draft %s: %w", key, err)
	}

	confirmed := false
	if p, ok := c.pending[key]; ok && p.seq == seq {
		delete(c.pending, key)
		confirmed = true
	}
	c.mu.Unlock()

	if confirmed {
		c.mirrorDelete(sessionID, key)
	}

	c.bus.Publish(events.Event{Type: events.DraftSaved, SessionID: sessionID, Key: key})
	return nil
}

func (c *Cache) mirrorSet(sessionID string, key authoring.DraftKey, content string) {
	if err := c.store.Set(tabstore.DraftKey(sessionID, key), content); err != nil {
		c.warnMirror(err)
	}
}

func (c *Cache) mirrorDelete(sessionID string, key authoring.DraftKey) {
	if err := c.store.Delete(tabstore.DraftKey(sessionID, key)); err != nil {
		c.warnMirror(err)
	}
}

func (c *Cache) mirrorLoad(sessionID string) map[authoring.DraftKey]string {
	out := make(map[authoring.DraftKey]string)
	if sessionID == "" {
		return out
	}

	prefix := tabstore.DraftPrefix(sessionID)
	keys, err := c.store.Keys(prefix)
	if err != nil {
		c.warnMirror(err)
		return out
	}

	for _, k := range keys {
		key, err := authoring.ParseDraftKey(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		content, ok, err := c.store.Get(k)
		if err != nil {
			c.warnMirror(err)
			continue
		}
		if ok {
			out[key] = content
		}
	}
	return out
}

func (c *Cache) warnMirror(err error) {
	c.warnOnce.Do(func() {
		logger.Warn("draft journal unavailable, drafts are memory-only until saved", "error", err)
	})
}
