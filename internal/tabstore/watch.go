package tabstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange whenever the storage file at path (or its WAL
// sidecars) is written by any process, until ctx is cancelled. Events are
// hints only; callers still read the store to learn what changed.
func Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// sqlite replaces and creates sidecar files, so watch the directory
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				onChange()
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// watcher errors are non-fatal; the poll loop still converges
		}
	}
}
