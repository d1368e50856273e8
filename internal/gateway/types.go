package gateway

import (
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
)

// wire shapes shared with api/rest/sessions

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

type listSessionsResponse struct {
	Sessions []authoring.SessionSummary `json:"sessions"`
}

type saveSessionRequest struct {
	Transcript []authoring.Message       `json:"transcript"`
	Draft      authoring.CourseStructure `json:"draftState"`
}

type saveSessionResponse struct {
	OK      bool      `json:"ok"`
	SavedAt time.Time `json:"saved_at"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type draftsResponse struct {
	Drafts map[authoring.DraftKey]string `json:"drafts"`
}

type saveDraftRequest struct {
	Content string `json:"content"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// matches the server's error body
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
