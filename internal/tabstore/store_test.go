package tabstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/authoring"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(0)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("a", "1"))
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Delete("a"))
	_, ok, _ = s.Get("a")
	assert.False(t, ok)
}

func TestMemoryStoreQuota(t *testing.T) {
	s := NewMemoryStore(10)

	require.NoError(t, s.Set("k", "12345"))

	err := s.Set("j", "123456789")
	require.Error(t, err)
	assert.ErrorIs(t, err, authoring.ErrQuotaExceeded)
	assert.Equal(t, authoring.KindQuotaExceeded, authoring.Classify(err))

	// overwriting an existing key only counts the difference
	require.NoError(t, s.Set("k", "123456789"))
}

func TestMemoryStoreKeysByPrefix(t *testing.T) {
	s := NewMemoryStore(0)
	k1 := DraftKey("s1", authoring.DraftKey{Section: 0, Lesson: 1})
	k2 := DraftKey("s1", authoring.DraftKey{Section: 1, Lesson: 0})
	require.NoError(t, s.Set(k2, "b"))
	require.NoError(t, s.Set(k1, "a"))
	require.NoError(t, s.Set(DraftKey("s10", authoring.DraftKey{}), "other"))

	keys, err := s.Keys(DraftPrefix("s1"))
	require.NoError(t, err)
	assert.Equal(t, []string{k1, k2}, keys)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.db")
	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(KeyActiveSession, "s1"))
	require.NoError(t, s.Set(KeyActiveSession, "s2"))

	v, ok, err := s.Get(KeyActiveSession)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s2", v)
	assert.Equal(t, path, s.Path())
}

func TestSQLiteStoreSharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.db")

	a, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer a.Close()

	b, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Set(KeyActiveSession, "from-a"))

	v, ok, err := b.Get(KeyActiveSession)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from-a", v)
}

func TestSQLiteStoreKeysEscapesWildcards(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tabs.db"), 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("a_b.1", "x"))
	require.NoError(t, s.Set("axb.2", "y"))

	keys, err := s.Keys("a_b.")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b.1"}, keys)
}

func TestSQLiteStoreQuota(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tabs.db"), 32)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("k", "small"))
	err = s.Set("big", strings.Repeat("x", 64))
	assert.ErrorIs(t, err, authoring.ErrQuotaExceeded)
}

// multi-byte drafts count by their encoded size in both stores
func TestQuotaCountsBytes(t *testing.T) {
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "tabs.db"), 40)
	require.NoError(t, err)
	defer sqlite.Close()

	for name, s := range map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(40),
	} {
		t.Run(name, func(t *testing.T) {
			// 11 characters, 21 bytes
			require.NoError(t, s.Set("a", strings.Repeat("é", 10)))

			err := s.Set("b", strings.Repeat("x", 19))
			assert.ErrorIs(t, err, authoring.ErrQuotaExceeded)

			require.NoError(t, s.Set("b", strings.Repeat("x", 18)))
		})
	}
}

func TestSQLiteStoreClosed(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tabs.db"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.Set("k", "v"))
	_, _, err = s.Get("k")
	assert.Error(t, err)
}

// failingStore fails every call once armed
type failingStore struct {
	*MemoryStore
	fail atomic.Bool
}

func (f *failingStore) Set(key, value string) error {
	if f.fail.Load() {
		return ErrQuotaExceeded
	}
	return f.MemoryStore.Set(key, value)
}

func (f *failingStore) Get(key string) (string, bool, error) {
	if f.fail.Load() {
		return "", false, errors.New("storage unavailable")
	}
	return f.MemoryStore.Get(key)
}

func TestFallbackDegradesToMemory(t *testing.T) {
	primary := &failingStore{MemoryStore: NewMemoryStore(0)}
	f := NewFallback(primary)

	require.NoError(t, f.Set("a", "1"))
	assert.False(t, f.Degraded())

	primary.fail.Store(true)

	assert.NoError(t, f.Set("b", "2"))
	assert.True(t, f.Degraded())

	v, ok, err := f.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok, err = f.Get("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	// memory-only from here on, even if the primary recovers
	primary.fail.Store(false)
	require.NoError(t, f.Set("c", "3"))
	_, ok, _ = primary.MemoryStore.Get("c")
	assert.False(t, ok)
}

func TestFallbackPathHiddenOnceDegraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.db")
	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)

	f := NewFallback(s)
	assert.Equal(t, path, f.Path())

	require.NoError(t, s.Close())
	require.NoError(t, f.Set("k", "v"))

	assert.True(t, f.Degraded())
	assert.Empty(t, f.Path())
}

func TestWatchReportsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.db")
	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { hits.Add(1) })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, s.Set(KeyActiveSession, "s1"))

	assert.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
