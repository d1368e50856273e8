package sessions

import (
	"context"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
)

// repository interface for session database operations
type Repository interface {
	// session operations
	CreateSession(ctx context.Context, ownerID, title string) (*Record, error)
	GetSession(ctx context.Context, ownerID, sessionID string) (*Record, error)
	ListSessions(ctx context.Context, ownerID string) ([]authoring.SessionSummary, error)
	SaveSession(ctx context.Context, ownerID, sessionID string, transcript []authoring.Message, draft authoring.CourseStructure) (time.Time, error)
	RenameSession(ctx context.Context, ownerID, sessionID, title string) error
	DeleteSession(ctx context.Context, ownerID, sessionID string) error
	SessionOwner(ctx context.Context, sessionID string) (string, error)

	// lesson draft operations
	GetDrafts(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error)
	WriteDrafts(ctx context.Context, sessionID string, drafts map[authoring.DraftKey]string) error
	ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]StaleDraft, error)
	DeleteDrafts(ctx context.Context, sessionID string, keys []authoring.DraftKey) (int64, error)
}

// a stored authoring session and its owner
type Record struct {
	authoring.Session
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// a lesson draft not written for a while, with the structure it belongs to
type StaleDraft struct {
	SessionID string
	Key       authoring.DraftKey
	UpdatedAt time.Time
	Draft     authoring.CourseStructure
}

// reports whether the draft no longer addresses a lesson
func (d StaleDraft) Orphaned() bool {
	return !d.Draft.HasLesson(d.Key)
}
