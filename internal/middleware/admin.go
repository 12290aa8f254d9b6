package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nestfolio/backend/pkg/response"
)

// RequireAdmin returns a middleware that allows only platform admins.
// Organization roles are checked per-handler, not here.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ContextIsAdmin)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		admin, _ := v.(bool)
		if !admin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
