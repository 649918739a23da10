package middleware

import (
	"net/http"
	"strings"

	"github.com/attendly/attendly-go/internal/infrastructure/security"
	"github.com/attendly/attendly-go/pkg/config"
	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userId"
	roleKey   = "role"
)

// AuthMiddleware validates the bearer token and stores the subject and role
// on the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := ""
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		claims, err := security.ValidateJWT(token, config.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		subject := security.SubjectFromClaims(claims)
		if subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token subject"})
			c.Abort()
			return
		}

		c.Set(userIDKey, subject)
		c.Set(roleKey, security.RoleFromClaims(claims))
		c.Next()
	}
}

// AdminOnlyMiddleware restricts a route to admin tokens. Must run after
// AuthMiddleware.
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != security.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated subject set by AuthMiddleware.
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}
