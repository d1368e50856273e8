package errors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
)

// Error Handling Guidelines:
//
// For HTTP REST handlers:
//   - Use errors.InternalError(), errors.BadRequest(), etc. for critical errors
//     These functions handle both logging and HTTP response automatically
//   - Use errors.FromService() for errors returned by repositories; it maps
//     the authoring sentinels onto status codes
//   - Never call both logger.ErrorErr() and errors.InternalError() for the same error
//
// For services/repositories/internal packages:
//   - Return wrapped errors with context using fmt.Errorf("context: %w", err)
//   - Let the caller (handler) decide how to log and respond
//   - Do not log errors in non-handler code (avoid double logging)

// returns a 401 unauthorized error
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}

	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   CodeUnauthorized,
		Message: message,
	})
}

// returns a 403 forbidden error
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "permission denied"
	}

	c.JSON(http.StatusForbidden, ErrorResponse{
		Error:   CodeForbidden,
		Message: message,
	})
}

// returns a 404 not found error
func NotFound(c *gin.Context, resource string) {
	message := "resource not found"

	if resource != "" {
		message = resource + " not found"
	}

	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// returns a 404 error for session not found
func SessionNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeSessionNotFound,
		Message: "session not found",
	})
}

// returns a 400 bad request error
func BadRequest(c *gin.Context, message string, err error) {
	if message == "" {
		message = "invalid request"
	}

	response := ErrorResponse{
		Error:   CodeBadRequest,
		Message: message,
	}

	if err != nil {
		response.Details = classifyError(err).sanitized
	}

	c.JSON(http.StatusBadRequest, response)
}

// returns a 400 bad request error for validation failures
func ValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationError,
		Message: "request validation failed",
		Details: classifyError(err).sanitized,
	})
}

// returns a 500 internal server error
func InternalError(c *gin.Context, message string, err error) {
	if message == "" {
		message = "an error occurred"
	}

	// log full error server-side with context
	logger.ErrorErr(err, message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"user_id", c.GetString("user_id"),
	)

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeServerError,
		Message: message,
		Details: classifyError(err).sanitized,
	})
}

// returns a 503; clients treat it as transient and retry
func Unavailable(c *gin.Context, message string, err error) {
	if message == "" {
		message = "service temporarily unavailable"
	}

	logger.Warn(message,
		"path", c.Request.URL.Path,
		"error", err,
	)

	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   CodeUnavailable,
		Message: message,
	})
}

// returns a 409 conflict error
func Conflict(c *gin.Context, message string) {
	if message == "" {
		message = "resource conflict"
	}

	c.JSON(http.StatusConflict, ErrorResponse{
		Error:   CodeConflict,
		Message: message,
	})
}

// returns a 429 too many requests error
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "too many requests"
	}

	c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:   CodeTooManyRequests,
		Message: message,
	})
}

// returns a 502 when the generation provider failed
func GenerationFailed(c *gin.Context, err error) {
	logger.ErrorErr(err, "generation failed",
		"path", c.Request.URL.Path,
		"user_id", c.GetString("user_id"),
	)

	c.JSON(http.StatusBadGateway, ErrorResponse{
		Error:   CodeGenerationFailed,
		Message: "failed to generate a reply",
		Details: classifyError(err).sanitized,
	})
}

// FromService responds to an error returned by a repository or service,
// choosing the status from the authoring sentinels it wraps.
func FromService(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, authoring.ErrNotFound):
		SessionNotFound(c)
	case errors.Is(err, authoring.ErrIdentityConflict):
		Conflict(c, err.Error())
	case errors.Is(err, authoring.ErrTransientIO):
		Unavailable(c, message, err)
	default:
		if classifyError(err).category == CategoryTimeout {
			Unavailable(c, message, err)
			return
		}
		InternalError(c, message, err)
	}
}
