package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/seatline/backend/internal/auth"
	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/response"
)

// RequireRole admits only callers whose token carries one of roles. It must
// run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.ClaimsFrom(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !slices.Contains(roles, claims.Role) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
