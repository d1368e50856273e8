package sessions

import (
	"context"
	"time"

	"codeberg.org/coursepilot/server/coursepilot/sessions"
	"codeberg.org/coursepilot/server/internal/authoring"
)

// header naming the tab that issued a write
const ClientIDHeader = "X-Client-ID"

// largest lesson draft accepted, in bytes
const maxDraftSize = 256 * 1024

// the session repository with buffered draft writes
type Store interface {
	sessions.Repository
	SaveDraft(ctx context.Context, sessionID string, key authoring.DraftKey, content string) error
}

// receives save notifications; satisfied by the websocket hub
type Notifier interface {
	Notify(sessionID, msgType string, payload any)
	EndSession(sessionID string)
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=200"`
}

type CreateSessionResponse struct {
	ID string `json:"id"`
}

type ListSessionsResponse struct {
	Sessions []authoring.SessionSummary `json:"sessions"`
}

type SaveSessionRequest struct {
	Transcript []authoring.Message       `json:"transcript"`
	Draft      authoring.CourseStructure `json:"draftState"`
}

type SaveSessionResponse struct {
	OK      bool      `json:"ok"`
	SavedAt time.Time `json:"saved_at"`
}

type RenameSessionRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

type DraftsResponse struct {
	Drafts map[authoring.DraftKey]string `json:"drafts"`
}

// empty content removes the draft
type SaveDraftRequest struct {
	Content string `json:"content"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
