package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CookieSettings describes how the session cookie is issued.
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
}

// Set writes the session cookie. HTTP-only and SameSite=Lax so browser
// JS never sees the token.
func (cs CookieSettings) Set(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cs.Name, token, maxAge, "/", cs.Domain, cs.Secure, true)
}

// Clear expires the session cookie.
func (cs CookieSettings) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cs.Name, "", -1, "/", cs.Domain, cs.Secure, true)
}
