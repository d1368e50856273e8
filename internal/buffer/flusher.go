package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"codeberg.org/coursepilot/server/coursepilot/sessions"
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/metrics"
)

// handles periodic flushing of buffered drafts from Redis to Postgres
type Flusher struct {
	buffer      *DraftBuffer
	sessionRepo sessions.Repository
	metrics     *metrics.Metrics
	interval    time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// creates a new flusher; m may be nil
func NewFlusher(buffer *DraftBuffer, sessionRepo sessions.Repository, interval time.Duration, m *metrics.Metrics) *Flusher {
	return &Flusher{
		buffer:      buffer,
		sessionRepo: sessionRepo,
		metrics:     m,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// begins the background flush loop
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	logger.Info("draft flusher started", "interval", f.interval.String())
}

// gracefully stops the flusher and flushes any remaining data
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
	logger.Info("draft flusher stopped")
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.stopCh:
			// final flush before stopping
			logger.Info("flushing remaining drafts before shutdown")
			f.flush()
			return
		}
	}
}

func (f *Flusher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	f.FlushAll(ctx)

	if f.metrics != nil {
		f.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}
}

// flushes every dirty session once and reports how many drafts were
// written
func (f *Flusher) FlushAll(ctx context.Context) int {
	sessionIDs, err := f.buffer.DirtySessions(ctx)
	if err != nil {
		logger.ErrorErr(err, "failed to get dirty draft sessions")
		return 0
	}

	if len(sessionIDs) == 0 {
		return 0
	}

	logger.Debug("flushing drafts for sessions", "count", len(sessionIDs))

	written := 0
	for _, sessionID := range sessionIDs {
		n, err := f.FlushSession(ctx, sessionID)
		if err != nil {
			logger.ErrorErr(err, "failed to flush drafts", "session_id", sessionID)
			continue
		}
		written += n
	}

	return written
}

// immediately flushes the drafts of one session; on failure they are
// requeued for the next pass
func (f *Flusher) FlushSession(ctx context.Context, sessionID string) (int, error) {
	drafts, err := f.buffer.Drain(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	if len(drafts) == 0 {
		return 0, nil
	}

	if err := f.sessionRepo.WriteDrafts(ctx, sessionID, drafts); err != nil {
		// the session was deleted after these drafts were buffered
		if errors.Is(err, authoring.ErrNotFound) {
			logger.Warn("dropping drafts of missing session", "session_id", sessionID, "count", len(drafts))
			return 0, nil
		}

		if f.metrics != nil {
			f.metrics.FlushErrors.Inc()
		}

		// re-add so we retry next flush
		if rqErr := f.buffer.Requeue(ctx, sessionID, drafts); rqErr != nil {
			logger.ErrorErr(rqErr, "failed to requeue drafts, they are lost", "session_id", sessionID, "count", len(drafts))
		}
		return 0, err
	}

	if f.metrics != nil {
		f.metrics.DraftsFlushed.Add(float64(len(drafts)))
	}

	logger.Debug("flushed drafts to postgres", "session_id", sessionID, "count", len(drafts))
	return len(drafts), nil
}
