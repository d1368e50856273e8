// Package events is the in-process broadcast channel shared by every
// surface of one tab.
package events

import (
	"runtime/debug"
	"sync"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
)

type Type string

const (
	// the active session identity changed
	SessionChanged Type = "session-changed"

	// shared session state was reloaded for the active identity
	SessionLoaded Type = "session-loaded"

	// a full session save was confirmed by the host
	SessionSaved Type = "session-saved"

	// a lesson-scoped draft save was confirmed by the host
	DraftSaved Type = "draft-saved"

	// the save indicator moved
	SaveStateChanged Type = "save-state"
)

// where an identity change came from
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

type Event struct {
	Type       Type
	SessionID  string
	PreviousID string
	Origin     Origin

	// set when a temporary identifier was replaced by a durable one
	Promoted bool

	State authoring.SaveState
	Key   authoring.DraftKey
	Err   error
}

type Handler func(Event)

type subscription struct {
	id      uint64
	types   map[Type]bool
	handler Handler
}

// delivers events synchronously, in subscription order, outside any lock
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// registers handler for the given types (all types when none are given)
// and returns the function that removes it
func (b *Bus) Subscribe(handler Handler, types ...Type) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}

	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.subs = append(b.subs, sub)
	id := sub.id

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[ev.Type] {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		deliver(h, ev)
	}
}

// a panicking handler is logged and skipped; the publisher and the
// remaining handlers carry on
func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				"type", string(ev.Type),
				"session_id", ev.SessionID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	h(ev)
}

// drops every subscription
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}
