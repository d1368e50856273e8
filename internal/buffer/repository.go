package buffer

import (
	"context"
	"fmt"

	"codeberg.org/coursepilot/server/coursepilot/sessions"
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/metrics"
)

// wraps a sessions.Repository with Redis buffering.
// draft writes go to Redis first, draft reads merge the buffer over Postgres,
// everything else passes through.
type BufferedRepository struct {
	sessions.Repository

	buffer  *DraftBuffer
	metrics *metrics.Metrics
}

// creates a new buffered repository wrapper; m may be nil
func NewBufferedRepository(db sessions.Repository, buffer *DraftBuffer, m *metrics.Metrics) *BufferedRepository {
	return &BufferedRepository{
		Repository: db,
		buffer:     buffer,
		metrics:    m,
	}
}

// === BUFFERED OPERATIONS ===

// buffers one draft write; empty content deletes the draft on flush
func (r *BufferedRepository) SaveDraft(ctx context.Context, sessionID string, key authoring.DraftKey, content string) error {
	kind := "set"
	if content == "" {
		kind = "delete"
	}

	if err := r.buffer.SetDraft(ctx, sessionID, key, content); err != nil {
		logger.ErrorErr(err, "failed to buffer draft", "session_id", sessionID)

		// fall back to direct DB write
		if err := r.Repository.WriteDrafts(ctx, sessionID, map[authoring.DraftKey]string{key: content}); err != nil {
			return err
		}
		kind += "_direct"
	}

	if r.metrics != nil {
		r.metrics.DraftWrites.WithLabelValues(kind).Inc()
	}
	return nil
}

// returns stored drafts with unflushed writes applied on top
func (r *BufferedRepository) GetDrafts(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	drafts, err := r.Repository.GetDrafts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pending, err := r.buffer.Pending(ctx, sessionID)
	if err != nil {
		// drafts in redis are newer than postgres; serving without them
		// could resurrect older content
		return nil, fmt.Errorf("get drafts: %w: %w", authoring.ErrTransientIO, err)
	}

	for key, content := range pending {
		if content == "" {
			delete(drafts, key)
			continue
		}
		drafts[key] = content
	}

	return drafts, nil
}

// deletes the session and anything still buffered for it
func (r *BufferedRepository) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	if err := r.Repository.DeleteSession(ctx, ownerID, sessionID); err != nil {
		return err
	}

	if err := r.buffer.ClearSession(ctx, sessionID); err != nil {
		logger.ErrorErr(err, "failed to clear buffered drafts of deleted session", "session_id", sessionID)
	}
	return nil
}
