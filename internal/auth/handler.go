package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/response"
	"github.com/nestfolio/backend/pkg/utils"
)

// DefaultCollections creates the starter collection for a new account.
// Implemented by the collections repository.
type DefaultCollections interface {
	EnsureDefault(ctx context.Context, userID uuid.UUID) error
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is the auth response. The token is also set as an
// HTTP-only cookie; the body copy is for non-browser clients.
type SessionResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo        *Repository
	jwt         *JWTService
	cookie      CookieSettings
	collections DefaultCollections
	logger      *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, cookie CookieSettings, collections DefaultCollections, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, cookie: cookie, collections: collections, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, "password exceeds 72 bytes")
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.FullName)
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(c, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	if err := h.collections.EnsureDefault(c.Request.Context(), user.ID); err != nil {
		h.logger.Error("create default collection", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to set up account")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	h.cookie.Set(c, token, int(h.jwt.TTL().Seconds()))
	response.Created(c, SessionResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	h.cookie.Set(c, token, int(h.jwt.TTL().Seconds()))
	c.JSON(http.StatusOK, response.Body{Success: true, Data: SessionResponse{Token: token, User: user.ToPublic()}})
}

// Logout handles POST /auth/logout. Clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	h.cookie.Clear(c)
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID := middleware.UserID(c)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		// Session outlived the account.
		h.cookie.Clear(c)
		response.Unauthorized(c, "account no longer exists")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: user.ToPublic()})
}

// List handles GET /admin/users (platform admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: list})
}
