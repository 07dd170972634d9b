package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/pkg/response"
)

// JWT returns a middleware that validates the bearer token and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		auth.SetIdentity(c, claims)
		c.Next()
	}
}

// QueryJWT authenticates with a ?token= query parameter. Browsers cannot set
// headers on WebSocket upgrades, so the live feed uses this.
func QueryJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := jwtService.Validate(c.Query("token"))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		auth.SetIdentity(c, claims)
		c.Next()
	}
}
