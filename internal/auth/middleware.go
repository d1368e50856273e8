package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/errors"
)

// validates bearer tokens and adds the author to the context. The
// websocket upgrade cannot set headers from browsers, so a token query
// parameter is accepted as well.
func (s *Signer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			errors.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		claims, err := s.Validate(token)
		if err != nil {
			errors.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, true
		}
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// extracts user_id from context after Middleware
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextUserID)

	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok && id != ""
}
