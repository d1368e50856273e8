package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// represents JWT claims of an author
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

const (
	ContextUserID = "user_id"
	ContextEmail  = "user_email"
)
