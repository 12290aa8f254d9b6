package emaillogs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
	"github.com/nestfolio/backend/pkg/response"
)

// Store is the persistence surface the handler needs. Implemented by
// *Repository; faked in handler tests.
type Store interface {
	ListForOrg(ctx context.Context, orgID uuid.UUID) ([]models.EmailLog, error)
}

// MemberRoles resolves a user's role in an organization. Implemented by
// the organizations repository.
type MemberRoles interface {
	GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error)
}

// Handler handles email delivery log endpoints.
type Handler struct {
	store Store
	roles MemberRoles
}

// NewHandler creates an email logs handler.
func NewHandler(store Store, roles MemberRoles) *Handler {
	return &Handler{store: store, roles: roles}
}

// ListForOrg handles GET /api/organizations/:id/emails. Owners and
// admins only; shows what the notification worker delivered.
func (h *Handler) ListForOrg(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	role, err := h.roles.GetMemberRole(c.Request.Context(), orgID, middleware.UserID(c))
	if errors.Is(err, organizations.ErrNotMember) {
		response.Forbidden(c, "not a member of this organization")
		return
	}
	if err != nil {
		response.Internal(c, "failed to check membership")
		return
	}
	if !organizations.CanManageMembers(role) {
		response.Forbidden(c, "only owners and admins can view email logs")
		return
	}
	logs, err := h.store.ListForOrg(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
