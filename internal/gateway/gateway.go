// Package gateway is the client side of the host platform's persistence
// and generation endpoints. It carries no business logic: sessions and
// drafts go over the wire unchanged.
package gateway

import (
	"context"

	"codeberg.org/coursepilot/server/internal/authoring"
)

// Gateway saves and loads sessions addressed by identifier.
// Implementations return errors wrapping the authoring sentinels:
// ErrNotFound for a missing session, ErrTransientIO for anything retryable.
type Gateway interface {
	Save(ctx context.Context, sessionID string, transcript []authoring.Message, draft authoring.CourseStructure) error
	LoadSession(ctx context.Context, sessionID string) (*authoring.Session, error)
	LoadDrafts(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error)
	SaveDraft(ctx context.Context, sessionID string, key authoring.DraftKey, content string) error
	CreateSession(ctx context.Context, title string) (string, error)
	ListSessions(ctx context.Context) ([]authoring.SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error
	RenameSession(ctx context.Context, sessionID, title string) error
}

// Generator produces the assistant's reply for one chat turn.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

type GenerateRequest struct {
	SessionID  string                    `json:"session_id"`
	Message    string                    `json:"message"`
	Transcript []authoring.Message       `json:"transcript"`
	Draft      authoring.CourseStructure `json:"draftState"`
}

// a response may carry a new draft; callers merge it like a local edit
type GenerateResponse struct {
	Message      string                     `json:"message"`
	UpdatedDraft *authoring.CourseStructure `json:"updatedDraftState,omitempty"`
}
