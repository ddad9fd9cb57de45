// internal/handlers/auth.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"esplit/internal/auth"
	"esplit/internal/logger"
	"esplit/internal/middleware"
	"esplit/internal/models"

	"github.com/gin-gonic/gin"
)

// Authenticator is the part of auth.Provider the HTTP layer uses.
type Authenticator interface {
	SignUp(ctx context.Context, email, password, name string) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
	Resume(ctx context.Context, token string) (*auth.Session, error)
	Profile(ctx context.Context, userID uint) (*models.User, error)
}

type CookieConfig struct {
	Domain string
	Secure bool
}

func (cc CookieConfig) set(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, token, maxAge, "/", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, "", -1, "/", cc.Domain, cc.Secure, true)
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func newAuthResponse(s *auth.Session) AuthResponse {
	resp := AuthResponse{Token: s.Token, ExpiresAt: s.ExpiresAt}
	if s.User != nil {
		resp.User = *s.User
	} else {
		resp.User = models.User{Email: s.Identity.Email}
		resp.User.ID = s.Identity.UserID
	}
	return resp
}

func Register(a Authenticator, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Ctx(c.Request.Context()).Debug().Err(err).Msg("sign-up request rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		session, err := a.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		cookies.set(c, session.Token, session.ExpiresAt)
		c.JSON(http.StatusCreated, newAuthResponse(session))
	}
}

func Login(a Authenticator, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		session, err := a.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		cookies.set(c, session.Token, session.ExpiresAt)
		c.JSON(http.StatusOK, newAuthResponse(session))
	}
}

// Session turns a bearer token into the HTTP-only session cookie. Protected
// routes verify the session again on every request, so a failure here only
// means the cookie is not set.
func Session(a Authenticator, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		session, err := a.Resume(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		cookies.set(c, token, session.ExpiresAt)
		c.JSON(http.StatusOK, gin.H{"user_id": session.Identity.UserID, "expires_at": session.ExpiresAt})
	}
}

// Logout revokes the caller's session if there is one and always clears the
// cookie.
func Logout(a Authenticator, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.RequestToken(c)
		if err := a.SignOut(c.Request.Context(), token); err != nil {
			logger.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to revoke session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out"})
			return
		}

		cookies.clear(c)
		c.Status(http.StatusOK)
	}
}

func GetProfile(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.ContextUserID)

		user, err := a.Profile(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			logger.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to load profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}
