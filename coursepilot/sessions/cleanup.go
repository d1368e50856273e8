package sessions

import (
	"context"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
)

const cleanupBatchSize = 500

// removes lesson drafts whose lesson was deleted from the saved structure.
// Drafts younger than the retention window are kept, since a client may
// not have saved the structure that still contains their lesson.
type CleanupService struct {
	repo          Repository
	checkInterval time.Duration
	retention     time.Duration
	onRemoved     func(n int)
	now           func() time.Time
}

// creates a new cleanup service; onRemoved may be nil
func NewCleanupService(repo Repository, checkInterval, retention time.Duration, onRemoved func(n int)) *CleanupService {
	return &CleanupService{
		repo:          repo,
		checkInterval: checkInterval,
		retention:     retention,
		onRemoved:     onRemoved,
		now:           time.Now,
	}
}

// begins the cleanup service background loop
func (s *CleanupService) Start(ctx context.Context) {
	logger.Info("starting orphan draft cleanup service",
		"check_interval", s.checkInterval,
		"retention", s.retention,
	)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("orphan draft cleanup service stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				logger.ErrorErr(err, "failed to clean up orphan drafts")
			}
		}
	}
}

// RunOnce deletes one batch of orphaned drafts and reports how many went.
func (s *CleanupService) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)

	stale, err := s.repo.ListStaleDrafts(ctx, cutoff, cleanupBatchSize)
	if err != nil {
		return 0, err
	}

	orphans := make(map[string][]authoring.DraftKey)
	for _, d := range stale {
		if d.Orphaned() {
			orphans[d.SessionID] = append(orphans[d.SessionID], d.Key)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}

	removed := 0
	for sessionID, keys := range orphans {
		n, err := s.repo.DeleteDrafts(ctx, sessionID, keys)
		removed += int(n)
		if err != nil {
			logger.ErrorErr(err, "failed to delete orphan drafts", "session_id", sessionID)
			continue
		}
	}

	logger.Info("removed orphan drafts", "count", removed, "sessions", len(orphans))

	if s.onRemoved != nil {
		s.onRemoved(removed)
	}

	return removed, nil
}
