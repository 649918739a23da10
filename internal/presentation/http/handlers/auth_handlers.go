// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"net/http"

	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
	"github.com/attendly/attendly-go/internal/infrastructure/security"
	"github.com/attendly/attendly-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// AuthHandlers issues and inspects bearer tokens.
type AuthHandlers struct {
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAuthHandlers creates auth handlers
func NewAuthHandlers(logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthHandlers {
	return &AuthHandlers{logger: logger, perfTracker: perfTracker}
}

// TokenRequest is the login payload. AdminKey is only required for an admin
// token.
type TokenRequest struct {
	UserID   string `json:"userId" binding:"required"`
	AdminKey string `json:"adminKey,omitempty"`
}

// PostToken handles POST /api/v1/auth/token
func (h *AuthHandlers) PostToken(c *gin.Context) {
	marker := h.perfTracker.StartOperation("auth:token", "auth")
	defer h.perfTracker.CompleteOperation(marker)

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	role := security.RoleUser
	if req.AdminKey != "" {
		if err := security.VerifyAdminKey(req.AdminKey, config.AdminKeyHash); err != nil {
			marker.SetError(err)
			h.logger.LogAuthOperation("token", req.UserID, false, map[string]any{"requestedRole": "admin"})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin key"})
			return
		}
		role = security.RoleAdmin
	}

	token, err := security.GenerateToken(req.UserID, role, config.JWTSecret, config.TokenLifetime)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.logger.LogAuthOperation("token", req.UserID, true, map[string]any{"role": role})
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"role":      role,
		"expiresIn": int(config.TokenLifetime.Seconds()),
	})
}

// GetStatus handles GET /api/v1/auth/status
func (h *AuthHandlers) GetStatus(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	claims, err := security.ValidateJWT(authHeader[7:], config.JWTSecret)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"userId":        security.SubjectFromClaims(claims),
		"role":          security.RoleFromClaims(claims),
	})
}
