package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aide/internal/store"
)

// Context keys set by Middleware.
const (
	ContextUserID = "auth_user_id"
	ContextEmail  = "auth_email"
)

// Middleware rejects requests without a valid bearer token and loads the
// account behind it. Inactive accounts are refused.
func Middleware(tokens *TokenManager, users store.UserRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := tokens.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		user, err := users.FindByID(c.Request.Context(), claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}
		c.Set(ContextUserID, user.ID)
		c.Set(ContextEmail, user.Email)
		c.Next()
	}
}

// UserID returns the authenticated account id from the request context.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
