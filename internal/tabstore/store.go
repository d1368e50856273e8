// Package tabstore is the durable key-value storage shared by the tabs of
// one author profile. Values are plain strings; callers encode JSON.
package tabstore

import (
	"errors"
	"fmt"

	"codeberg.org/coursepilot/server/internal/authoring"
)

// default capacity, matching what browsers grant per origin
const DefaultQuotaBytes = 5 * 1024 * 1024

// key under which the active session identifier is stored
const KeyActiveSession = "coursepilot.activeSession"

// ErrQuotaExceeded wraps authoring.ErrQuotaExceeded so callers can use either
var ErrQuotaExceeded = fmt.Errorf("tabstore: %w", authoring.ErrQuotaExceeded)

var errClosed = errors.New("tabstore: store closed")

type Store interface {
	// returns the value and whether it exists
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	// lists keys starting with prefix
	Keys(prefix string) ([]string, error)
}

// implemented by stores backed by a file other processes can observe
type Watchable interface {
	Path() string
}

// key of the mirrored draft for one lesson of one session
func DraftKey(sessionID string, key authoring.DraftKey) string {
	return DraftPrefix(sessionID) + key.String()
}

// prefix shared by every mirrored draft of a session
func DraftPrefix(sessionID string) string {
	return "coursepilot.draft." + sessionID + "."
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
