package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nestfolio/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextIsAdmin is the key for the platform-admin flag in gin context.
	ContextIsAdmin = "is_admin"
)

// Identity is the authenticated caller extracted from a session token.
type Identity struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

// TokenValidator validates a raw session token. Wired to the auth
// package's JWT service in main so this package has no auth import.
type TokenValidator func(token string) (Identity, error)

// Session returns a middleware that authenticates the request. The
// session cookie is checked first; an Authorization bearer header is
// accepted as a fallback for non-browser clients.
func Session(cookieName string, validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
			token = cookie
		} else if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(c, "invalid authorization header")
				c.Abort()
				return
			}
			token = parts[1]
		}
		if token == "" {
			response.Unauthorized(c, "missing session")
			c.Abort()
			return
		}

		ident, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}
		c.Set(ContextUserID, ident.UserID)
		c.Set(ContextUserEmail, ident.Email)
		c.Set(ContextIsAdmin, ident.IsAdmin)
		c.Next()
	}
}

// UserID returns the authenticated user ID from context. Only valid
// after the Session middleware has run.
func UserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}

// UserEmail returns the authenticated user's email from context.
func UserEmail(c *gin.Context) string {
	v, _ := c.Get(ContextUserEmail)
	email, _ := v.(string)
	return email
}

// IsAdmin reports whether the authenticated user is a platform admin.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ContextIsAdmin)
	admin, _ := v.(bool)
	return admin
}
