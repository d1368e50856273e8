package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/coursepilot/sessions"
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/metrics"
)

func newBuffer(t *testing.T) (*DraftBuffer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { b.Close() }) //nolint:errcheck
	return b, mr
}

// draftRepo stores drafts in memory and can be told to fail writes
type draftRepo struct {
	sessions.Repository

	mu      sync.Mutex
	drafts  map[string]map[authoring.DraftKey]string
	writes  int
	failErr error
}

func newDraftRepo() *draftRepo {
	return &draftRepo{drafts: make(map[string]map[authoring.DraftKey]string)}
}

func (r *draftRepo) WriteDrafts(_ context.Context, sessionID string, drafts map[authoring.DraftKey]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	if r.failErr != nil {
		return r.failErr
	}

	stored := r.drafts[sessionID]
	if stored == nil {
		stored = make(map[authoring.DraftKey]string)
		r.drafts[sessionID] = stored
	}
	for k, v := range drafts {
		if v == "" {
			delete(stored, k)
			continue
		}
		stored[k] = v
	}
	return nil
}

func (r *draftRepo) GetDrafts(_ context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[authoring.DraftKey]string)
	for k, v := range r.drafts[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (r *draftRepo) DeleteSession(_ context.Context, _, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, sessionID)
	return nil
}

func (r *draftRepo) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

var (
	k00 = authoring.DraftKey{Section: 0, Lesson: 0}
	k01 = authoring.DraftKey{Section: 0, Lesson: 1}
)

func TestDrainTakesEverythingOnce(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)

	require.NoError(t, b.SetDraft(ctx, "s1", k00, "first"))
	require.NoError(t, b.SetDraft(ctx, "s1", k00, "second"))
	require.NoError(t, b.SetDraft(ctx, "s1", k01, ""))

	dirty, err := b.DirtySessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, dirty)

	drained, err := b.Drain(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[authoring.DraftKey]string{k00: "second", k01: ""}, drained)

	again, err := b.Drain(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, again)

	dirty, err = b.DirtySessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestRequeueKeepsNewerWrites(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)

	require.NoError(t, b.SetDraft(ctx, "s1", k00, "old"))
	require.NoError(t, b.SetDraft(ctx, "s1", k01, "old too"))
	drained, err := b.Drain(ctx, "s1")
	require.NoError(t, err)

	// a write lands while the flush is failing
	require.NoError(t, b.SetDraft(ctx, "s1", k00, "newer"))
	require.NoError(t, b.Requeue(ctx, "s1", drained))

	pending, err := b.Pending(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "newer", pending[k00])
	assert.Equal(t, "old too", pending[k01])
}

func TestFlusherWritesAndRetries(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)
	repo := newDraftRepo()
	m := metrics.New(nil)
	f := NewFlusher(b, repo, time.Hour, m)

	require.NoError(t, b.SetDraft(ctx, "s1", k00, "body"))
	repo.fail(fmt.Errorf("write drafts: %w", authoring.ErrTransientIO))

	assert.Zero(t, f.FlushAll(ctx))
	pending, err := b.Pending(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "body", pending[k00], "failed flush must be requeued")

	repo.fail(nil)
	assert.Equal(t, 1, f.FlushAll(ctx))

	stored, err := repo.GetDrafts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "body", stored[k00])

	dirty, err := b.DirtySessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestFlusherDropsDraftsOfDeletedSession(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)
	repo := newDraftRepo()
	f := NewFlusher(b, repo, time.Hour, nil)

	require.NoError(t, b.SetDraft(ctx, "gone", k00, "body"))
	repo.fail(fmt.Errorf("write drafts: %w", authoring.ErrNotFound))

	n, err := f.FlushSession(ctx, "gone")
	require.NoError(t, err)
	assert.Zero(t, n)

	dirty, err := b.DirtySessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestFlusherStopFlushesRemaining(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)
	repo := newDraftRepo()
	f := NewFlusher(b, repo, time.Hour, nil)
	f.Start()

	require.NoError(t, b.SetDraft(ctx, "s1", k00, "last"))
	f.Stop()
	f.Stop()

	stored, err := repo.GetDrafts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "last", stored[k00])
}

func TestBufferedRepositoryOverlaysPending(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)
	repo := newDraftRepo()
	require.NoError(t, repo.WriteDrafts(ctx, "s1", map[authoring.DraftKey]string{k00: "stored", k01: "stored too"}))

	br := NewBufferedRepository(repo, b, nil)
	require.NoError(t, br.SaveDraft(ctx, "s1", k00, "buffered"))
	require.NoError(t, br.SaveDraft(ctx, "s1", k01, ""))

	drafts, err := br.GetDrafts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[authoring.DraftKey]string{k00: "buffered"}, drafts)
}

func TestBufferedRepositoryFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	b, mr := newBuffer(t)
	repo := newDraftRepo()
	br := NewBufferedRepository(repo, b, nil)

	mr.Close()

	require.NoError(t, br.SaveDraft(ctx, "s1", k00, "direct"))
	stored, err := repo.GetDrafts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "direct", stored[k00])

	_, err = br.GetDrafts(ctx, "s1")
	assert.True(t, errors.Is(err, authoring.ErrTransientIO))
}

func TestBufferedRepositoryDeleteClearsBuffer(t *testing.T) {
	ctx := context.Background()
	b, _ := newBuffer(t)
	repo := newDraftRepo()
	br := NewBufferedRepository(repo, b, nil)

	require.NoError(t, br.SaveDraft(ctx, "s1", k00, "body"))
	require.NoError(t, br.DeleteSession(ctx, "owner", "s1"))

	pending, err := b.Pending(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
