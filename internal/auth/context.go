package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventplanner/backend/internal/models"
)

// Gin context keys set by the JWT middleware.
const (
	ContextUserID    = "user_id"
	ContextUserRole  = "user_role"
	ContextUserEmail = "user_email"
)

// SetIdentity stores token claims on the request context.
func SetIdentity(c *gin.Context, claims *Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUserRole, claims.Role)
	c.Set(ContextUserEmail, claims.Email)
}

// CurrentUserID returns the authenticated user's ID.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// CurrentRole returns the role carried by the access token.
func CurrentRole(c *gin.Context) models.Role {
	return models.Role(c.GetString(ContextUserRole))
}
