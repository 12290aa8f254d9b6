package addons

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
	"github.com/nestfolio/backend/pkg/response"
)

// OrgRoles resolves a caller's role in an organization. Implemented by
// the organizations repository.
type OrgRoles interface {
	GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error)
}

// Handler handles addon catalog and grant HTTP endpoints.
type Handler struct {
	repo   *Repository
	roles  OrgRoles
	logger *zap.Logger
}

// NewHandler creates an addons handler.
func NewHandler(repo *Repository, roles OrgRoles, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, roles: roles, logger: logger}
}

// GrantView is a grant plus its computed active state.
type GrantView struct {
	models.AddonGrant
	Active bool `json:"active"`
}

func grantViews(list []models.AddonGrant, now time.Time) []GrantView {
	out := make([]GrantView, 0, len(list))
	for _, g := range list {
		out = append(out, GrantView{AddonGrant: g, Active: g.Active(now)})
	}
	return out
}

// Catalog handles GET /api/addons.
func (h *Handler) Catalog(c *gin.Context) {
	list, err := h.repo.ListCatalog(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load addons")
		return
	}
	response.OK(c, list)
}

// MyGrants handles GET /api/me/addons.
func (h *Handler) MyGrants(c *gin.Context) {
	list, err := h.repo.ListUserGrants(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to load addon grants")
		return
	}
	response.OK(c, grantViews(list, time.Now()))
}

// GrantRequest is the body for grant upserts.
type GrantRequest struct {
	Enabled   *bool      `json:"enabled" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// UpdateMyGrant handles PATCH /api/me/addons/:slug. Toggles the
// caller's own grant; the purchase flow lives outside this API.
func (h *Handler) UpdateMyGrant(c *gin.Context) {
	addon, ok := h.addonParam(c)
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "enabled required")
		return
	}
	g, err := h.repo.UpsertUserGrant(c.Request.Context(), middleware.UserID(c), addon.ID, *req.Enabled, req.ExpiresAt)
	if err != nil {
		response.Internal(c, "failed to update addon grant")
		return
	}
	g.AddonSlug = addon.Slug
	response.OK(c, GrantView{AddonGrant: *g, Active: g.Active(time.Now())})
}

func (h *Handler) addonParam(c *gin.Context) (*models.Addon, bool) {
	slug := c.Param("slug")
	addon, err := h.repo.GetAddonBySlug(c.Request.Context(), slug)
	if errors.Is(err, ErrAddonNotFound) {
		response.NotFound(c, "addon not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load addon")
		return nil, false
	}
	return addon, true
}

// orgAccess loads the caller's role and checks the manage gate when
// manage is true (listing only needs membership).
func (h *Handler) orgAccess(c *gin.Context, manage bool) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, false
	}
	role, err := h.roles.GetMemberRole(c.Request.Context(), orgID, middleware.UserID(c))
	if errors.Is(err, organizations.ErrNotMember) {
		response.Forbidden(c, "not a member of this organization")
		return uuid.Nil, false
	}
	if err != nil {
		response.Internal(c, "failed to check membership")
		return uuid.Nil, false
	}
	if manage && !organizations.CanManageAddons(role) {
		response.Forbidden(c, "only owners and admins can manage addons")
		return uuid.Nil, false
	}
	return orgID, true
}

// OrgGrants handles GET /api/organizations/:id/addons. Members only.
func (h *Handler) OrgGrants(c *gin.Context) {
	orgID, ok := h.orgAccess(c, false)
	if !ok {
		return
	}
	h.writeOrgGrants(c, orgID)
}

func (h *Handler) writeOrgGrants(c *gin.Context, orgID uuid.UUID) {
	list, err := h.repo.ListOrgGrants(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load addon grants")
		return
	}
	response.OK(c, grantViews(list, time.Now()))
}

// OrgGrantRequest is the body for POST /api/organizations/:id/addons.
type OrgGrantRequest struct {
	Slug      string     `json:"slug" binding:"required"`
	Enabled   *bool      `json:"enabled"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateOrgGrant handles POST /api/organizations/:id/addons. Owner or admin.
func (h *Handler) CreateOrgGrant(c *gin.Context) {
	orgID, ok := h.orgAccess(c, true)
	if !ok {
		return
	}
	h.upsertOrgGrant(c, orgID)
}

func (h *Handler) upsertOrgGrant(c *gin.Context, orgID uuid.UUID) {
	var req OrgGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	addon, err := h.repo.GetAddonBySlug(c.Request.Context(), req.Slug)
	if errors.Is(err, ErrAddonNotFound) {
		response.NotFound(c, "addon not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load addon")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	g, err := h.repo.UpsertOrgGrant(c.Request.Context(), orgID, addon.ID, enabled, req.ExpiresAt)
	if err != nil {
		response.Internal(c, "failed to save addon grant")
		return
	}
	g.AddonSlug = addon.Slug
	response.Created(c, GrantView{AddonGrant: *g, Active: g.Active(time.Now())})
}

// UpdateOrgGrant handles PATCH /api/organizations/:id/addons/:slug. Owner or admin.
func (h *Handler) UpdateOrgGrant(c *gin.Context) {
	orgID, ok := h.orgAccess(c, true)
	if !ok {
		return
	}
	h.patchOrgGrant(c, orgID)
}

func (h *Handler) patchOrgGrant(c *gin.Context, orgID uuid.UUID) {
	addon, ok := h.addonParam(c)
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "enabled required")
		return
	}
	g, err := h.repo.UpsertOrgGrant(c.Request.Context(), orgID, addon.ID, *req.Enabled, req.ExpiresAt)
	if err != nil {
		response.Internal(c, "failed to update addon grant")
		return
	}
	g.AddonSlug = addon.Slug
	response.OK(c, GrantView{AddonGrant: *g, Active: g.Active(time.Now())})
}

// DeleteOrgGrant handles DELETE /api/organizations/:id/addons/:slug. Owner or admin.
func (h *Handler) DeleteOrgGrant(c *gin.Context) {
	orgID, ok := h.orgAccess(c, true)
	if !ok {
		return
	}
	h.removeOrgGrant(c, orgID)
}

func (h *Handler) removeOrgGrant(c *gin.Context, orgID uuid.UUID) {
	if err := h.repo.DeleteOrgGrant(c.Request.Context(), orgID, c.Param("slug")); err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			response.NotFound(c, "addon grant not found")
			return
		}
		response.Internal(c, "failed to remove addon grant")
		return
	}
	response.NoContent(c)
}

// Admin mirror: the same grant operations without a membership
// requirement, mounted behind the platform-admin gate.

func adminOrgID(c *gin.Context) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, false
	}
	return orgID, true
}

// AdminOrgGrants handles GET /api/admin/organizations/:orgId/addons.
func (h *Handler) AdminOrgGrants(c *gin.Context) {
	orgID, ok := adminOrgID(c)
	if !ok {
		return
	}
	h.writeOrgGrants(c, orgID)
}

// AdminCreateOrgGrant handles POST /api/admin/organizations/:orgId/addons.
func (h *Handler) AdminCreateOrgGrant(c *gin.Context) {
	orgID, ok := adminOrgID(c)
	if !ok {
		return
	}
	h.upsertOrgGrant(c, orgID)
}

// AdminUpdateOrgGrant handles PATCH /api/admin/organizations/:orgId/addons/:slug.
func (h *Handler) AdminUpdateOrgGrant(c *gin.Context) {
	orgID, ok := adminOrgID(c)
	if !ok {
		return
	}
	h.patchOrgGrant(c, orgID)
}

// AdminDeleteOrgGrant handles DELETE /api/admin/organizations/:orgId/addons/:slug.
func (h *Handler) AdminDeleteOrgGrant(c *gin.Context) {
	orgID, ok := adminOrgID(c)
	if !ok {
		return
	}
	h.removeOrgGrant(c, orgID)
}
