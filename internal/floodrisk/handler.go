package floodrisk

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/addons"
	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/listings"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/response"
)

// ListingSource loads listings.
type ListingSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// CollectionSource loads the parent collection for access checks.
type CollectionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
}

// Handler serves flood risk assessments for listings.
type Handler struct {
	listings     ListingSource
	cols         CollectionSource
	access       *collections.Access
	entitlements *addons.Entitlements
	logger       *zap.Logger
}

// NewHandler creates a flood risk handler.
func NewHandler(listingSrc ListingSource, cols CollectionSource, access *collections.Access, entitlements *addons.Entitlements, logger *zap.Logger) *Handler {
	return &Handler{listings: listingSrc, cols: cols, access: access, entitlements: entitlements, logger: logger}
}

// Get handles GET /api/listings/:id/flood-risk. The addon context is the
// listing's collection: an org grant counts only for org listings.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid listing id")
		return
	}
	l, err := h.listings.GetByID(c.Request.Context(), id)
	if errors.Is(err, listings.ErrNotFound) {
		response.NotFound(c, "listing not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load listing")
		return
	}
	col, err := h.cols.GetByID(c.Request.Context(), l.CollectionID)
	if err != nil {
		response.Internal(c, "failed to load collection")
		return
	}

	userID := middleware.UserID(c)
	allowed, err := h.access.CanView(c.Request.Context(), col, userID, middleware.IsAdmin(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot view this listing")
		return
	}
	if !h.entitlements.Require(c, userID, models.AddonFloodRisk, col.OrganizationID) {
		return
	}

	assessment, err := Assess(l.Payload)
	if err != nil {
		response.BadRequest(c, "listing payload cannot be assessed")
		return
	}
	response.OK(c, assessment)
}
