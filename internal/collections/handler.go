package collections

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
	"github.com/nestfolio/backend/pkg/response"
	"github.com/nestfolio/backend/pkg/utils"
)

// Store is the persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, userID, orgID *uuid.UUID, name, description string) (*models.Collection, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Collection, error)
	ListForOrg(ctx context.Context, orgID uuid.UUID) ([]models.Collection, error)
	CountPersonal(ctx context.Context, userID uuid.UUID) (int, error)
	Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Collection, error)
	Delete(ctx context.Context, id uuid.UUID) error
	EnableSharing(ctx context.Context, id uuid.UUID, token string) (*models.Collection, error)
	RevokeSharing(ctx context.Context, id uuid.UUID) (*models.Collection, error)
}

// PlanResolver resolves the caller's effective plan limits.
type PlanResolver interface {
	ResolveLimits(ctx context.Context, userID uuid.UUID) (models.PlanLimits, error)
}

// Broadcaster fans an event out to a collection's realtime room across
// all instances.
type Broadcaster interface {
	PublishToCollectionOnly(collectionID uuid.UUID, event string, payload interface{})
}

// PhotoKeys looks up the S3 object keys under a collection's listings so
// deletes can queue cleanup before the rows cascade away.
type PhotoKeys interface {
	ListKeysForCollection(ctx context.Context, collectionID uuid.UUID) ([]string, error)
}

// CleanupQueue defers S3 object deletion to the worker.
type CleanupQueue interface {
	EnqueuePhotoCleanup(ctx context.Context, keys []string) error
}

// Handler handles collection HTTP endpoints.
type Handler struct {
	store     Store
	access    *Access
	roles     MemberRoles
	plans     PlanResolver
	rt        Broadcaster
	photoKeys PhotoKeys
	cleanup   CleanupQueue
	logger    *zap.Logger
}

// NewHandler creates a collections handler.
func NewHandler(store Store, access *Access, roles MemberRoles, plans PlanResolver, rt Broadcaster, photoKeys PhotoKeys, cleanup CleanupQueue, logger *zap.Logger) *Handler {
	return &Handler{store: store, access: access, roles: roles, plans: plans, rt: rt, photoKeys: photoKeys, cleanup: cleanup, logger: logger}
}

func (h *Handler) broadcast(collectionID uuid.UUID, event string, payload interface{}) {
	if h.rt != nil {
		h.rt.PublishToCollectionOnly(collectionID, event, payload)
	}
}

// load fetches the collection from the :id param, writing 400/404 itself.
func (h *Handler) load(c *gin.Context) (*models.Collection, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid collection id")
		return nil, false
	}
	col, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "collection not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load collection")
		return nil, false
	}
	return col, true
}

// requireManage loads the collection and checks collection-level write access.
func (h *Handler) requireManage(c *gin.Context) (*models.Collection, bool) {
	col, ok := h.load(c)
	if !ok {
		return nil, false
	}
	allowed, err := h.access.CanManage(c.Request.Context(), col, middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return nil, false
	}
	if !allowed {
		response.Forbidden(c, "you cannot manage this collection")
		return nil, false
	}
	return col, true
}

// List handles GET /api/collections. An organization_id query narrows the
// result to one org (membership required).
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserID(c)

	if raw := c.Query("organization_id"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid organization_id")
			return
		}
		if _, err := h.roles.GetMemberRole(c.Request.Context(), orgID, userID); err != nil {
			if errors.Is(err, organizations.ErrNotMember) {
				response.Forbidden(c, "not a member of this organization")
				return
			}
			response.Internal(c, "failed to check membership")
			return
		}
		list, err := h.store.ListForOrg(c.Request.Context(), orgID)
		if err != nil {
			response.Internal(c, "failed to list collections")
			return
		}
		response.OK(c, list)
		return
	}

	list, err := h.store.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list collections")
		return
	}
	response.OK(c, list)
}

// CreateRequest is the body for POST /api/collections.
type CreateRequest struct {
	Name           string     `json:"name" binding:"required"`
	Description    string     `json:"description"`
	OrganizationID *uuid.UUID `json:"organization_id"`
}

// Create handles POST /api/collections. Personal creates are plan-capped;
// org creates require an owner or admin role in the target org.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 255 {
		response.BadRequest(c, "name must be between 1 and 255 characters")
		return
	}
	userID := middleware.UserID(c)

	if req.OrganizationID != nil {
		role, err := h.roles.GetMemberRole(c.Request.Context(), *req.OrganizationID, userID)
		if errors.Is(err, organizations.ErrNotMember) {
			response.Forbidden(c, "not a member of this organization")
			return
		}
		if err != nil {
			response.Internal(c, "failed to check membership")
			return
		}
		if !organizations.CanManageCollections(role) {
			response.Forbidden(c, "only owners and admins can create organization collections")
			return
		}
		col, err := h.store.Create(c.Request.Context(), nil, req.OrganizationID, req.Name, req.Description)
		if err != nil {
			response.Internal(c, "failed to create collection")
			return
		}
		response.Created(c, col)
		return
	}

	limits, err := h.plans.ResolveLimits(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to resolve plan")
		return
	}
	if !models.Unlimited(limits.MaxCollections) {
		count, err := h.store.CountPersonal(c.Request.Context(), userID)
		if err != nil {
			response.Internal(c, "failed to count collections")
			return
		}
		if count >= limits.MaxCollections {
			response.Forbidden(c, "your plan's collection limit is reached")
			return
		}
	}
	col, err := h.store.Create(c.Request.Context(), &userID, nil, req.Name, req.Description)
	if err != nil {
		response.Internal(c, "failed to create collection")
		return
	}
	response.Created(c, col)
}

// Get handles GET /api/collections/:id.
func (h *Handler) Get(c *gin.Context) {
	col, ok := h.load(c)
	if !ok {
		return
	}
	allowed, err := h.access.CanView(c.Request.Context(), col, middleware.UserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot view this collection")
		return
	}
	response.OK(c, col)
}

// UpdateRequest is the body for PUT /api/collections/:id.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Update handles PUT /api/collections/:id.
func (h *Handler) Update(c *gin.Context) {
	col, ok := h.requireManage(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" || len(trimmed) > 255 {
			response.BadRequest(c, "name must be between 1 and 255 characters")
			return
		}
		req.Name = &trimmed
	}
	updated, err := h.store.Update(c.Request.Context(), col.ID, req.Name, req.Description)
	if err != nil {
		response.Internal(c, "failed to update collection")
		return
	}
	h.broadcast(updated.ID, "collection.updated", updated)
	response.OK(c, updated)
}

// Delete handles DELETE /api/collections/:id.
func (h *Handler) Delete(c *gin.Context) {
	col, ok := h.requireManage(c)
	if !ok {
		return
	}
	// Photo rows cascade with the collection, so their S3 keys are read
	// up front and queued for cleanup once the delete lands.
	var keys []string
	if h.photoKeys != nil && h.cleanup != nil {
		var err error
		keys, err = h.photoKeys.ListKeysForCollection(c.Request.Context(), col.ID)
		if err != nil {
			h.logger.Warn("failed to collect photo keys for cleanup", zap.String("collection_id", col.ID.String()), zap.Error(err))
			keys = nil
		}
	}
	err := h.store.Delete(c.Request.Context(), col.ID)
	if errors.Is(err, ErrSoleDefault) {
		response.Conflict(c, "cannot delete your only collection")
		return
	}
	if err != nil {
		response.Internal(c, "failed to delete collection")
		return
	}
	if len(keys) > 0 {
		if err := h.cleanup.EnqueuePhotoCleanup(c.Request.Context(), keys); err != nil {
			h.logger.Warn("failed to enqueue photo cleanup", zap.String("collection_id", col.ID.String()), zap.Error(err))
		}
	}
	h.broadcast(col.ID, "collection.deleted", gin.H{"id": col.ID})
	response.NoContent(c)
}

// Share handles POST /api/collections/:id/share. Idempotent: an already
// shared collection returns its existing link.
func (h *Handler) Share(c *gin.Context) {
	col, ok := h.requireManage(c)
	if !ok {
		return
	}
	limits, err := h.plans.ResolveLimits(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to resolve plan")
		return
	}
	if !limits.CanShare {
		response.Forbidden(c, "your plan does not include sharing")
		return
	}
	if col.IsPublic && col.ShareToken != nil {
		response.OK(c, col)
		return
	}
	token, err := utils.GenerateToken(32)
	if err != nil {
		response.Internal(c, "failed to generate share token")
		return
	}
	shared, err := h.store.EnableSharing(c.Request.Context(), col.ID, token)
	if err != nil {
		response.Internal(c, "failed to share collection")
		return
	}
	h.broadcast(shared.ID, "collection.updated", shared)
	response.OK(c, shared)
}

// Unshare handles DELETE /api/collections/:id/share.
func (h *Handler) Unshare(c *gin.Context) {
	col, ok := h.requireManage(c)
	if !ok {
		return
	}
	revoked, err := h.store.RevokeSharing(c.Request.Context(), col.ID)
	if err != nil {
		response.Internal(c, "failed to revoke sharing")
		return
	}
	h.broadcast(revoked.ID, "collection.updated", revoked)
	response.OK(c, revoked)
}
