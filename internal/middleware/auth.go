package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/verdantio/greenhouse-backend/internal/auth"
)

// Context keys for the claims stored in gin.Context. Constants so a typo
// fails to compile instead of silently reading nothing.
const (
	ContextKeyUserID = "user_id"
	ContextKeyLogin  = "login"
)

// AuthMiddleware validates the bearer token and stores the caller's
// identity in the request context. Requests without a valid session are
// rejected uniformly with 401 and never reach a handler.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}
		tokenString := parts[1]

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyLogin, claims.Login)

		c.Next()
	}
}

// GetUserID returns the authenticated caller's id, or uuid.Nil if the
// middleware did not run. uuid.Nil matches no rows, so a missing identity
// fails closed in every query.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetLogin(c *gin.Context) string {
	val, exists := c.Get(ContextKeyLogin)
	if !exists {
		return ""
	}
	login, ok := val.(string)
	if !ok {
		return ""
	}
	return login
}
