package sessions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/errors"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/metrics"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

// reads the author and the :id parameter; responds and returns false when
// either is missing or malformed
func sessionParams(c *gin.Context) (userID, sessionID string, ok bool) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		errors.Unauthorized(c, "")
		return "", "", false
	}

	sessionID = c.Param("id")
	if !errors.IsValidUUID(sessionID) {
		errors.BadRequest(c, "invalid session id", nil)
		return "", "", false
	}

	return userID, sessionID, true
}

// confirms that the author owns the session, answering 404 otherwise so
// other authors' ids are not disclosed
func ownsSession(c *gin.Context, store Store, userID, sessionID string) bool {
	owner, err := store.SessionOwner(c.Request.Context(), sessionID)
	if err != nil {
		errors.FromService(c, "failed to look up session", err)
		return false
	}

	if owner != userID {
		errors.SessionNotFound(c)
		return false
	}

	return true
}

func notify(hub Notifier, sessionID, msgType string, payload any) {
	if hub != nil {
		hub.Notify(sessionID, msgType, payload)
	}
}

// CreateSessionHandler godoc
// @Summary Create a session
// @Description Create an empty authoring session; an empty body creates an untitled one
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest false "Session title"
// @Success 201 {object} CreateSessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions [post]
func CreateSessionHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			errors.Unauthorized(c, "")
			return
		}

		var req CreateSessionRequest
		// an empty body creates an untitled session
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				errors.ValidationError(c, err)
				return
			}
		}

		rec, err := store.CreateSession(c.Request.Context(), userID, req.Title)
		if err != nil {
			errors.FromService(c, "failed to create session", err)
			return
		}

		logger.Info("session created", "session_id", rec.ID, "user_id", userID)
		c.JSON(http.StatusCreated, CreateSessionResponse{ID: rec.ID})
	}
}

// ListSessionsHandler godoc
// @Summary List sessions
// @Description List the author's sessions, most recently updated first
// @Tags sessions
// @Produce json
// @Success 200 {object} ListSessionsResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions [get]
func ListSessionsHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			errors.Unauthorized(c, "")
			return
		}

		list, err := store.ListSessions(c.Request.Context(), userID)
		if err != nil {
			errors.FromService(c, "failed to list sessions", err)
			return
		}

		c.JSON(http.StatusOK, ListSessionsResponse{Sessions: list})
	}
}

// GetSessionHandler godoc
// @Summary Get a session
// @Description Load transcript and draft of one session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} authoring.Session
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions/{id} [get]
func GetSessionHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, sessionID, ok := sessionParams(c)
		if !ok {
			return
		}

		rec, err := store.GetSession(c.Request.Context(), userID, sessionID)
		if err != nil {
			errors.FromService(c, "failed to load session", err)
			return
		}

		c.JSON(http.StatusOK, rec.Session)
	}
}

// SaveSessionHandler godoc
// @Summary Save a session
// @Description Replace transcript and draft in one write and notify watchers
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body SaveSessionRequest true "Transcript and draft"
// @Success 200 {object} SaveSessionResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions/{id} [put]
func SaveSessionHandler(store Store, hub Notifier, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, sessionID, ok := sessionParams(c)
		if !ok {
			return
		}

		var req SaveSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		savedAt, err := store.SaveSession(c.Request.Context(), userID, sessionID, req.Transcript, req.Draft)
		if m != nil {
			m.SessionSaves.WithLabelValues(metrics.Status(err)).Inc()
		}
		if err != nil {
			errors.FromService(c, "failed to save session", err)
			return
		}

		notify(hub, sessionID, ws.TypeSessionSaved, ws.SessionSavedPayload{
			SavedAt: savedAt,
			Origin:  c.GetHeader(ClientIDHeader),
		})

		c.JSON(http.StatusOK, SaveSessionResponse{OK: true, SavedAt: savedAt})
	}
}

// RenameSessionHandler godoc
// @Summary Rename a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body RenameSessionRequest true "New title"
// @Success 200 {object} OKResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions/{id} [patch]
func RenameSessionHandler(store Store, hub Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, sessionID, ok := sessionParams(c)
		if !ok {
			return
		}

		var req RenameSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if err := store.RenameSession(c.Request.Context(), userID, sessionID, req.Title); err != nil {
			errors.FromService(c, "failed to rename session", err)
			return
		}

		notify(hub, sessionID, ws.TypeSessionRenamed, ws.SessionRenamedPayload{
			Title:  req.Title,
			Origin: c.GetHeader(ClientIDHeader),
		})

		c.JSON(http.StatusOK, OKResponse{OK: true})
	}
}

// DeleteSessionHandler godoc
// @Summary Delete a session
// @Description Delete the session with its drafts and disconnect its watchers
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} OKResponse
// @Failure 404 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions/{id} [delete]
func DeleteSessionHandler(store Store, hub Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, sessionID, ok := sessionParams(c)
		if !ok {
			return
		}

		if err := store.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
			errors.FromService(c, "failed to delete session", err)
			return
		}

		if hub != nil {
			hub.EndSession(sessionID)
		}

		logger.Info("session deleted", "session_id", sessionID, "user_id", userID)
		c.JSON(http.StatusOK, OKResponse{OK: true})
	}
}

// GetDraftsHandler godoc
// @Summary Get lesson drafts
// @Description Return the lesson drafts of a session, including buffered writes not flushed yet
// @Tags drafts
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} DraftsResponse
// @Failure 404 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/drafts [get]
func GetDraftsHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, sessionID, ok := sessionParams(c)
		if !ok {
			return
		}

		if !ownsSession(c, store, userID, sessionID) {
			return
		}

		drafts, err := store.GetDrafts(c.Request.Context(), sessionID)
		if err != nil {
			errors.FromService(c, "failed to load drafts", err)
			return
		}

		if drafts == nil {
			drafts = map[authoring.DraftKey]string{}
		}

		c.JSON(http.StatusOK, DraftsResponse{Drafts: drafts})
	}
}

// SaveDraftHandler godoc
// @Summary Save a lesson draft
// @Description Buffer one lesson draft; empty content deletes it
// @Tags drafts
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param key path string true "Lesson key, section::lesson"
// @Param request body SaveDraftRequest true "Draft content"
// @Success 200 {object} OKResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/drafts/{key} [put]
func SaveDraftHandler(store Store, hub Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, sessionID, ok := sessionParams(c)
		if !ok {
			return
		}

		key, err := authoring.ParseDraftKey(c.Param("key"))
		if err != nil {
			errors.BadRequest(c, "invalid draft key", err)
			return
		}

		var req SaveDraftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if len(req.Content) > maxDraftSize {
			errors.BadRequest(c, "draft exceeds maximum size", nil)
			return
		}

		if !ownsSession(c, store, userID, sessionID) {
			return
		}

		if err := store.SaveDraft(c.Request.Context(), sessionID, key, req.Content); err != nil {
			errors.FromService(c, "failed to save draft", err)
			return
		}

		notify(hub, sessionID, ws.TypeDraftSaved, ws.DraftSavedPayload{
			Key:     key.String(),
			Deleted: req.Content == "",
			Origin:  c.GetHeader(ClientIDHeader),
		})

		c.JSON(http.StatusOK, OKResponse{OK: true})
	}
}
