package generate

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/errors"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/metrics"
)

// Handler godoc
// @Summary Answer a chat turn
// @Description Generate the assistant reply and an updated course outline for one message
// @Tags generate
// @Accept json
// @Produce json
// @Param request body gateway.GenerateRequest true "Message with transcript and draft"
// @Success 200 {object} gateway.GenerateResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/generate [post]
func Handler(generator gateway.Generator, owners OwnerLookup, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			errors.Unauthorized(c, "")
			return
		}

		var req gateway.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		req.Message = strings.TrimSpace(req.Message)
		switch {
		case req.Message == "":
			errors.BadRequest(c, "message is required", nil)
			return
		case len(req.Message) > maxMessageLength:
			errors.BadRequest(c, "message is too long", nil)
			return
		case len(req.Transcript) > maxTranscriptLength:
			errors.BadRequest(c, "transcript is too long", nil)
			return
		}

		// offline sessions never reach the server, so an id is only
		// checked when given
		if req.SessionID != "" && owners != nil {
			owner, err := owners.SessionOwner(c.Request.Context(), req.SessionID)
			if err != nil {
				errors.FromService(c, "failed to look up session", err)
				return
			}
			if owner != userID {
				errors.SessionNotFound(c)
				return
			}
		}

		resp, err := generator.Generate(c.Request.Context(), req)
		if m != nil {
			m.Generations.WithLabelValues(metrics.Status(err)).Inc()
		}

		if err != nil {
			if stderrors.Is(err, authoring.ErrTransientIO) {
				errors.Unavailable(c, "the assistant is busy, try again", err)
				return
			}
			errors.GenerationFailed(c, err)
			return
		}

		logger.Debug("generated reply",
			"session_id", req.SessionID,
			"user_id", userID,
			"draft_updated", resp.UpdatedDraft != nil,
		)

		c.JSON(http.StatusOK, resp)
	}
}
