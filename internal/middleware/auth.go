package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"avatarsvc/internal/models"
	"avatarsvc/internal/security"
)

const currentUserKey = "current_user"

// Auth verifies the bearer token and stores the caller as a models.Principal.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(currentUserKey, claims.Principal())

		c.Next()
	}
}

// CurrentUser returns the principal stored by Auth.
func CurrentUser(c *gin.Context) (models.Principal, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}
