package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/response"
)

// Store is the persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, collectionID, createdBy uuid.UUID, payload json.RawMessage) (*models.Listing, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListForCollection(ctx context.Context, collectionID uuid.UUID) ([]models.Listing, error)
	CountForCollection(ctx context.Context, collectionID uuid.UUID) (int, error)
	UpdatePayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) (*models.Listing, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CollectionSource loads the parent collection for access checks.
type CollectionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
}

// PlanResolver resolves the caller's effective plan limits.
type PlanResolver interface {
	ResolveLimits(ctx context.Context, userID uuid.UUID) (models.PlanLimits, error)
}

// ParseQuota tracks monthly AI-parse usage per user.
type ParseQuota interface {
	Allow(ctx context.Context, userID uuid.UUID, limit int) (bool, error)
}

// Broadcaster fans an event out to a collection's realtime room.
type Broadcaster interface {
	PublishToCollectionOnly(collectionID uuid.UUID, event string, payload interface{})
}

// PhotoKeys looks up the S3 object keys under a listing so deletes can
// queue cleanup before the photo rows cascade away.
type PhotoKeys interface {
	ListKeysForListing(ctx context.Context, listingID uuid.UUID) ([]string, error)
}

// CleanupQueue defers S3 object deletion to the worker.
type CleanupQueue interface {
	EnqueuePhotoCleanup(ctx context.Context, keys []string) error
}

// Handler handles listing HTTP endpoints nested under a collection.
type Handler struct {
	store     Store
	cols      CollectionSource
	access    *collections.Access
	plans     PlanResolver
	quota     ParseQuota
	rt        Broadcaster
	photoKeys PhotoKeys
	cleanup   CleanupQueue
	logger    *zap.Logger
}

// NewHandler creates a listings handler.
func NewHandler(store Store, cols CollectionSource, access *collections.Access, plans PlanResolver, quota ParseQuota, rt Broadcaster, photoKeys PhotoKeys, cleanup CleanupQueue, logger *zap.Logger) *Handler {
	return &Handler{store: store, cols: cols, access: access, plans: plans, quota: quota, rt: rt, photoKeys: photoKeys, cleanup: cleanup, logger: logger}
}

// collectPhotoKeys reads the listing's object keys ahead of a delete;
// the photo rows cascade with the listing, so they must be read first.
// Best effort: a miss only leaves orphaned objects behind.
func (h *Handler) collectPhotoKeys(ctx context.Context, listingID uuid.UUID) []string {
	if h.photoKeys == nil || h.cleanup == nil {
		return nil
	}
	keys, err := h.photoKeys.ListKeysForListing(ctx, listingID)
	if err != nil {
		h.logger.Warn("failed to collect photo keys for cleanup", zap.String("listing_id", listingID.String()), zap.Error(err))
		return nil
	}
	return keys
}

// queuePhotoCleanup enqueues deferred S3 deletion. Called only after the
// owning rows are gone.
func (h *Handler) queuePhotoCleanup(ctx context.Context, keys []string) {
	if len(keys) == 0 || h.cleanup == nil {
		return
	}
	if err := h.cleanup.EnqueuePhotoCleanup(ctx, keys); err != nil {
		h.logger.Warn("failed to enqueue photo cleanup", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (h *Handler) broadcast(collectionID uuid.UUID, event string, payload interface{}) {
	if h.rt != nil {
		h.rt.PublishToCollectionOnly(collectionID, event, payload)
	}
}

// loadCollection resolves the :id param, writing 400/404 itself.
func (h *Handler) loadCollection(c *gin.Context) (*models.Collection, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid collection id")
		return nil, false
	}
	col, err := h.cols.GetByID(c.Request.Context(), id)
	if errors.Is(err, collections.ErrNotFound) {
		response.NotFound(c, "collection not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load collection")
		return nil, false
	}
	return col, true
}

// loadListing resolves :listingId and checks it belongs to the collection.
func (h *Handler) loadListing(c *gin.Context, col *models.Collection) (*models.Listing, bool) {
	id, err := uuid.Parse(c.Param("listingId"))
	if err != nil {
		response.BadRequest(c, "invalid listing id")
		return nil, false
	}
	l, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "listing not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load listing")
		return nil, false
	}
	if l.CollectionID != col.ID {
		response.NotFound(c, "listing not found")
		return nil, false
	}
	return l, true
}

// validatePayload enforces the payload contract: a JSON object of
// bounded size. Arrays and scalars are rejected.
func validatePayload(raw json.RawMessage) string {
	if len(raw) > models.MaxListingPayloadBytes {
		return "payload exceeds the 64 KiB limit"
	}
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(raw) {
		return "payload must be a JSON object"
	}
	return ""
}

// ListingRequest is the body for listing create and update.
type ListingRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// List handles GET /api/collections/:id/listings.
func (h *Handler) List(c *gin.Context) {
	col, ok := h.loadCollection(c)
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
	list, err := h.store.ListForCollection(c.Request.Context(), col.ID)
	if err != nil {
		response.Internal(c, "failed to list listings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /api/collections/:id/listings/:listingId.
func (h *Handler) Get(c *gin.Context) {
	col, ok := h.loadCollection(c)
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
	l, ok := h.loadListing(c, col)
	if !ok {
		return
	}
	response.OK(c, l)
}

// Create handles POST /api/collections/:id/listings. Org members may
// contribute; personal collections accept only their owner. The target
// collection's listing count is capped by the caller's plan.
func (h *Handler) Create(c *gin.Context) {
	col, ok := h.loadCollection(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	allowed, err := h.access.CanContribute(c.Request.Context(), col, userID)
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot add listings to this collection")
		return
	}

	var req ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "payload is required")
		return
	}
	if msg := validatePayload(req.Payload); msg != "" {
		response.BadRequest(c, msg)
		return
	}

	limits, err := h.plans.ResolveLimits(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to resolve plan")
		return
	}
	if !models.Unlimited(limits.MaxListingsPerCollection) {
		count, err := h.store.CountForCollection(c.Request.Context(), col.ID)
		if err != nil {
			response.Internal(c, "failed to count listings")
			return
		}
		if count >= limits.MaxListingsPerCollection {
			response.Forbidden(c, "this collection's listing limit is reached")
			return
		}
	}

	l, err := h.store.Create(c.Request.Context(), col.ID, userID, req.Payload)
	if err != nil {
		response.Internal(c, "failed to create listing")
		return
	}
	h.broadcast(col.ID, "listing.created", l)
	response.Created(c, l)
}

// Update handles PUT /api/collections/:id/listings/:listingId. The
// payload is replaced wholesale.
func (h *Handler) Update(c *gin.Context) {
	col, ok := h.loadCollection(c)
	if !ok {
		return
	}
	allowed, err := h.access.CanContribute(c.Request.Context(), col, middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot edit listings in this collection")
		return
	}
	l, ok := h.loadListing(c, col)
	if !ok {
		return
	}
	var req ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "payload is required")
		return
	}
	if msg := validatePayload(req.Payload); msg != "" {
		response.BadRequest(c, msg)
		return
	}
	updated, err := h.store.UpdatePayload(c.Request.Context(), l.ID, req.Payload)
	if err != nil {
		response.Internal(c, "failed to update listing")
		return
	}
	h.broadcast(col.ID, "listing.updated", updated)
	response.OK(c, updated)
}

// Delete handles DELETE /api/collections/:id/listings/:listingId.
// Deletion follows the collection-manage gate, not the contribute gate.
func (h *Handler) Delete(c *gin.Context) {
	col, ok := h.loadCollection(c)
	if !ok {
		return
	}
	allowed, err := h.access.CanManage(c.Request.Context(), col, middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot delete listings in this collection")
		return
	}
	l, ok := h.loadListing(c, col)
	if !ok {
		return
	}
	keys := h.collectPhotoKeys(c.Request.Context(), l.ID)
	if err := h.store.Delete(c.Request.Context(), l.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "listing not found")
			return
		}
		response.Internal(c, "failed to delete listing")
		return
	}
	h.queuePhotoCleanup(c.Request.Context(), keys)
	h.broadcast(col.ID, "listing.deleted", gin.H{"id": l.ID})
	response.NoContent(c)
}

// ParseRequest is the body for POST /api/collections/:id/listings/parse.
type ParseRequest struct {
	Text string `json:"text" binding:"required"`
}

// maxParseTextBytes bounds the free text accepted by the parser.
const maxParseTextBytes = 32 * 1024

// Parse handles POST /api/collections/:id/listings/parse. Extracts a
// structured payload from free text without creating a listing. Usage
// counts against the plan's monthly quota.
func (h *Handler) Parse(c *gin.Context) {
	col, ok := h.loadCollection(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	allowed, err := h.access.CanContribute(c.Request.Context(), col, userID)
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot add listings to this collection")
		return
	}

	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "text is required")
		return
	}
	if len(req.Text) > maxParseTextBytes {
		response.BadRequest(c, "text exceeds the 32 KiB limit")
		return
	}

	limits, err := h.plans.ResolveLimits(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to resolve plan")
		return
	}
	if !models.Unlimited(limits.AIParsesPerMonth) {
		allowed, err := h.quota.Allow(c.Request.Context(), userID, limits.AIParsesPerMonth)
		if err != nil {
			response.Internal(c, "failed to check parse quota")
			return
		}
		if !allowed {
			response.RateLimited(c, "monthly parse quota reached")
			return
		}
	}

	response.OK(c, ParseListingText(req.Text))
}
