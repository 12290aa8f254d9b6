package financing

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nestfolio/backend/internal/addons"
	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
	"github.com/nestfolio/backend/pkg/response"
)

// Handler serves loan simulations.
type Handler struct {
	roles        collections.MemberRoles
	entitlements *addons.Entitlements
}

// NewHandler creates a financing handler.
func NewHandler(roles collections.MemberRoles, entitlements *addons.Entitlements) *Handler {
	return &Handler{roles: roles, entitlements: entitlements}
}

// SimulateRequest is the body for POST /api/financing/simulate.
type SimulateRequest struct {
	Price             float64    `json:"price" binding:"required"`
	DownPayment       float64    `json:"down_payment"`
	AnnualRatePercent float64    `json:"annual_rate_percent"`
	TermYears         int        `json:"term_years" binding:"required"`
	OrganizationID    *uuid.UUID `json:"organization_id"`
}

// Simulate handles POST /api/financing/simulate. An organization_id in
// the body makes the org's addon grant count, but only for its members.
func (h *Handler) Simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "price and term_years are required")
		return
	}
	userID := middleware.UserID(c)

	if req.OrganizationID != nil {
		if _, err := h.roles.GetMemberRole(c.Request.Context(), *req.OrganizationID, userID); err != nil {
			if errors.Is(err, organizations.ErrNotMember) {
				response.Forbidden(c, "not a member of this organization")
				return
			}
			response.Internal(c, "failed to check membership")
			return
		}
	}
	if !h.entitlements.Require(c, userID, models.AddonFinancing, req.OrganizationID) {
		return
	}

	sim, err := Simulate(req.Price, req.DownPayment, req.AnnualRatePercent, req.TermYears)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.OK(c, sim)
}
