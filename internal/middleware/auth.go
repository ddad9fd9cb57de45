// internal/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"esplit/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	CookieName = "auth_token"

	ContextUserID = "userID"
	ContextEmail  = "email"
	ContextToken  = "token"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// BearerToken extracts a token from the Authorization header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequestToken prefers the Authorization header and falls back to the
// session cookie.
func RequestToken(c *gin.Context) string {
	if token := BearerToken(c); token != "" {
		return token
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware admits requests carrying a valid token for a live session.
func AuthMiddleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := RequestToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextEmail, id.Email)
		c.Set(ContextToken, token)
		c.Next()
	}
}
