package tabstore

import (
	"sync"
	"sync/atomic"

	"codeberg.org/coursepilot/server/internal/logger"
)

// Fallback writes through to a durable primary and an in-memory shadow.
// The first primary failure switches it to memory-only for the rest of
// the process; values written so far stay readable, nothing survives a
// restart. It never returns an error.
type Fallback struct {
	primary Store
	shadow  *MemoryStore

	degraded atomic.Bool
	warnOnce sync.Once
}

func NewFallback(primary Store) *Fallback {
	return &Fallback{
		primary: primary,
		shadow:  NewMemoryStore(0),
	}
}

// reports whether durability was lost
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

func (f *Fallback) degrade(op string, err error) {
	f.degraded.Store(true)
	f.warnOnce.Do(func() {
		logger.Warn("durable tab storage unavailable, continuing memory-only",
			"op", op,
			"error", err,
		)
	})
}

func (f *Fallback) Get(key string) (string, bool, error) {
	if !f.Degraded() {
		v, ok, err := f.primary.Get(key)
		if err == nil {
			return v, ok, nil
		}
		f.degrade("get", err)
	}
	return f.shadow.Get(key)
}

func (f *Fallback) Set(key, value string) error {
	f.shadow.Set(key, value) //nolint:errcheck // unbounded shadow never fails

	if f.Degraded() {
		return nil
	}

	if err := f.primary.Set(key, value); err != nil {
		f.degrade("set", err)
	}
	return nil
}

func (f *Fallback) Delete(key string) error {
	f.shadow.Delete(key) //nolint:errcheck // memory delete never fails

	if f.Degraded() {
		return nil
	}

	if err := f.primary.Delete(key); err != nil {
		f.degrade("delete", err)
	}
	return nil
}

func (f *Fallback) Keys(prefix string) ([]string, error) {
	if !f.Degraded() {
		keys, err := f.primary.Keys(prefix)
		if err == nil {
			return keys, nil
		}
		f.degrade("keys", err)
	}
	return f.shadow.Keys(prefix)
}

// the primary's file, or "" once degraded or when the primary has none
func (f *Fallback) Path() string {
	if f.Degraded() {
		return ""
	}
	if w, ok := f.primary.(Watchable); ok {
		return w.Path()
	}
	return ""
}
