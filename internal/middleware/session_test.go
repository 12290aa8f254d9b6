package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	validate := func(token string) (Identity, error) {
		switch token {
		case "good":
			return Identity{UserID: userID, Email: "agent@example.com"}, nil
		case "admin":
			return Identity{UserID: userID, Email: "ops@example.com", IsAdmin: true}, nil
		default:
			return Identity{}, errors.New("bad signature")
		}
	}

	r := gin.New()
	r.GET("/me", Session("session", validate), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "email": UserEmail(c), "is_admin": IsAdmin(c)})
	})
	r.GET("/admin", Session("session", validate), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	get := func(path string, decorate func(*http.Request)) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if decorate != nil {
			decorate(req)
		}
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("no credentials", func(t *testing.T) {
		w := get("/me", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad cookie", func(t *testing.T) {
		w := get("/me", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "session", Value: "forged"})
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid cookie sets identity", func(t *testing.T) {
		w := get("/me", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "session", Value: "good"})
		})
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			UserID  uuid.UUID `json:"user_id"`
			Email   string    `json:"email"`
			IsAdmin bool      `json:"is_admin"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, userID, body.UserID)
		require.Equal(t, "agent@example.com", body.Email)
		require.False(t, body.IsAdmin)
	})

	t.Run("bearer header fallback", func(t *testing.T) {
		w := get("/me", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer good")
		})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		w := get("/me", func(req *http.Request) {
			req.Header.Set("Authorization", "Token good")
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin gate rejects member", func(t *testing.T) {
		w := get("/admin", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "session", Value: "good"})
		})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin gate passes admin", func(t *testing.T) {
		w := get("/admin", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "session", Value: "admin"})
		})
		require.Equal(t, http.StatusNoContent, w.Code)
	})
}
