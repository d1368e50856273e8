// Package buffer absorbs lesson draft writes in Redis and flushes them to
// Postgres in batches, so keystroke-rate draft saves never hit the
// database directly.
package buffer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
)

// handles Redis-backed buffering of lesson drafts
type DraftBuffer struct {
	client *redis.Client
}

// creates a new draft buffer with Redis connection
func Connect(redisURL string) (*DraftBuffer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis")

	return New(client), nil
}

func New(client *redis.Client) *DraftBuffer {
	return &DraftBuffer{client: client}
}

// closes the Redis connection
func (b *DraftBuffer) Close() error {
	return b.client.Close()
}

// returns the underlying Redis client (the rate limiter shares it)
func (b *DraftBuffer) Client() *redis.Client {
	return b.client
}

func draftsKey(sessionID string) string {
	return fmt.Sprintf(keySessionDrafts, sessionID)
}

// stores a draft for a session and marks the session dirty; empty content
// buffers a deletion
func (b *DraftBuffer) SetDraft(ctx context.Context, sessionID string, key authoring.DraftKey, content string) error {
	pipe := b.client.Pipeline()
	pipe.HSet(ctx, draftsKey(sessionID), key.String(), content)
	pipe.SAdd(ctx, keyDirtySessionsDrafts, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to buffer draft in redis: %w", err)
	}

	return nil
}

// returns the drafts of a session not flushed yet, deletions included
func (b *DraftBuffer) Pending(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	raw, err := b.client.HGetAll(ctx, draftsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read buffered drafts: %w", err)
	}

	return decode(sessionID, raw), nil
}

func decode(sessionID string, raw map[string]string) map[authoring.DraftKey]string {
	out := make(map[authoring.DraftKey]string, len(raw))
	for field, content := range raw {
		key, err := authoring.ParseDraftKey(field)
		if err != nil {
			logger.Warn("dropping buffered draft with invalid key", "session_id", sessionID, "key", field)
			continue
		}
		out[key] = content
	}
	return out
}

// returns all session IDs with unflushed drafts
func (b *DraftBuffer) DirtySessions(ctx context.Context) ([]string, error) {
	return b.client.SMembers(ctx, keyDirtySessionsDrafts).Result()
}

// atomically takes every buffered draft of a session and clears the
// buffer; writes arriving afterwards start a fresh hash
func (b *DraftBuffer) Drain(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	var all *redis.MapStringStringCmd

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		all = pipe.HGetAll(ctx, draftsKey(sessionID))
		pipe.Del(ctx, draftsKey(sessionID))
		pipe.SRem(ctx, keyDirtySessionsDrafts, sessionID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain buffered drafts: %w", err)
	}

	return decode(sessionID, all.Val()), nil
}

// puts drafts whose flush failed back, without overwriting values
// buffered since the drain
func (b *DraftBuffer) Requeue(ctx context.Context, sessionID string, drafts map[authoring.DraftKey]string) error {
	if len(drafts) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for key, content := range drafts {
		pipe.HSetNX(ctx, draftsKey(sessionID), key.String(), content)
	}
	pipe.SAdd(ctx, keyDirtySessionsDrafts, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue drafts: %w", err)
	}

	return nil
}

// removes all buffered data for a session (call after the session is deleted)
func (b *DraftBuffer) ClearSession(ctx context.Context, sessionID string) error {
	pipe := b.client.Pipeline()
	pipe.Del(ctx, draftsKey(sessionID))
	pipe.SRem(ctx, keyDirtySessionsDrafts, sessionID)

	_, err := pipe.Exec(ctx)
	return err
}
