package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/plans"
	"github.com/nestfolio/backend/pkg/response"
)

// Store is the persistence surface the handler needs. Implemented by
// *Repository; faked in handler tests.
type Store interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Activate(ctx context.Context, userID, planID uuid.UUID, expiresAt *time.Time) (*models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, status *models.SubscriptionStatus, expiresAt *time.Time, clearExpiry bool) (*models.Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CollectionCounter reports how many personal collections a user has.
// Implemented by the collections repository.
type CollectionCounter interface {
	CountPersonal(ctx context.Context, userID uuid.UUID) (int, error)
}

// ParseUsage reports AI parse usage for the current month. Implemented
// by the quota counter.
type ParseUsage interface {
	Used(ctx context.Context, userID uuid.UUID) (int, error)
}

// AddonSnapshot lists active addon slugs for the entitlement summary.
// Implemented by the addons repository.
type AddonSnapshot interface {
	ActiveUserSlugs(ctx context.Context, userID uuid.UUID) ([]string, error)
	ActiveOrgSlugsForUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]string, error)
}

// Handler handles subscription HTTP endpoints.
type Handler struct {
	store       Store
	catalog     PlanCatalog
	resolver    *Resolver
	collections CollectionCounter
	usage       ParseUsage
	addons      AddonSnapshot
	logger      *zap.Logger
}

// NewHandler creates a subscriptions handler.
func NewHandler(store Store, catalog PlanCatalog, resolver *Resolver, collections CollectionCounter, usage ParseUsage, addons AddonSnapshot, logger *zap.Logger) *Handler {
	return &Handler{store: store, catalog: catalog, resolver: resolver, collections: collections, usage: usage, addons: addons, logger: logger}
}

// expiryFor computes the subscription end for a plan's billing interval.
// Non-billed plans never expire.
func expiryFor(plan *models.Plan, now time.Time) *time.Time {
	var d time.Duration
	switch plan.BillingInterval {
	case "month":
		d = 30 * 24 * time.Hour
	case "year":
		d = 365 * 24 * time.Hour
	default:
		return nil
	}
	t := now.Add(d)
	return &t
}

// withEffectiveStatus rewrites each row's status to the derived value
// for display. The stored enum is left alone.
func withEffectiveStatus(list []models.Subscription, now time.Time) []models.Subscription {
	for i := range list {
		list[i].Status = list[i].EffectiveStatus(now)
	}
	return list
}

// List handles GET /api/subscriptions.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to load subscriptions")
		return
	}
	response.OK(c, withEffectiveStatus(list, time.Now()))
}

// SubscribeRequest is the body for POST /api/subscriptions.
type SubscribeRequest struct {
	PlanSlug string `json:"plan_slug" binding:"required"`
}

// Subscribe handles POST /api/subscriptions. Expires any current
// subscription and activates the new plan in one transaction.
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "plan_slug required")
		return
	}
	plan, err := h.catalog.GetBySlug(c.Request.Context(), req.PlanSlug)
	if errors.Is(err, plans.ErrNotFound) {
		response.NotFound(c, "plan not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load plan")
		return
	}
	if !plan.IsActive {
		response.BadRequest(c, "plan is not available")
		return
	}

	sub, err := h.store.Activate(c.Request.Context(), middleware.UserID(c), plan.ID, expiryFor(plan, time.Now()))
	if err != nil {
		h.logger.Error("activate subscription", zap.Error(err))
		response.Internal(c, "failed to activate subscription")
		return
	}
	sub.Plan = plan
	response.Created(c, sub)
}

// AdminList handles GET /api/admin/subscriptions?user_id=…
func (h *Handler) AdminList(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		response.BadRequest(c, "user_id query parameter required")
		return
	}
	list, err := h.store.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load subscriptions")
		return
	}
	response.OK(c, withEffectiveStatus(list, time.Now()))
}

// AdminGrantRequest is the body for POST /api/admin/subscriptions.
type AdminGrantRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	PlanSlug string    `json:"plan_slug" binding:"required"`
}

// AdminGrant handles POST /api/admin/subscriptions. Same transactional
// activation path as self-serve subscribe.
func (h *Handler) AdminGrant(c *gin.Context) {
	var req AdminGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "user_id and plan_slug required")
		return
	}
	plan, err := h.catalog.GetBySlug(c.Request.Context(), req.PlanSlug)
	if errors.Is(err, plans.ErrNotFound) {
		response.NotFound(c, "plan not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load plan")
		return
	}
	sub, err := h.store.Activate(c.Request.Context(), req.UserID, plan.ID, expiryFor(plan, time.Now()))
	if err != nil {
		response.Internal(c, "failed to activate subscription")
		return
	}
	sub.Plan = plan
	response.Created(c, sub)
}

// AdminUpdateRequest is the body for PATCH /api/admin/subscriptions/:id.
type AdminUpdateRequest struct {
	Status         *string    `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at"`
	ClearExpiresAt bool       `json:"clear_expires_at"`
}

// AdminUpdate handles PATCH /api/admin/subscriptions/:id.
func (h *Handler) AdminUpdate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid subscription id")
		return
	}
	var req AdminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	var status *models.SubscriptionStatus
	if req.Status != nil {
		s := models.SubscriptionStatus(*req.Status)
		switch s {
		case models.SubscriptionActive, models.SubscriptionExpired, models.SubscriptionCancelled:
		default:
			response.BadRequest(c, "status must be active, expired, or cancelled")
			return
		}
		status = &s
	}
	sub, err := h.store.Update(c.Request.Context(), id, status, req.ExpiresAt, req.ClearExpiresAt)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "subscription not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to update subscription")
		return
	}
	response.OK(c, sub)
}

// AdminDelete handles DELETE /api/admin/subscriptions/:id.
func (h *Handler) AdminDelete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid subscription id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "subscription not found")
			return
		}
		response.Internal(c, "failed to delete subscription")
		return
	}
	response.NoContent(c)
}

// EntitlementsResponse is the resolved account snapshot for the
// frontend: plan, usage, and active addons in one call.
type EntitlementsResponse struct {
	Plan struct {
		Slug   string            `json:"slug"`
		Name   string            `json:"name"`
		Limits models.PlanLimits `json:"limits"`
	} `json:"plan"`
	Usage struct {
		PersonalCollections int `json:"personal_collections"`
		AIParsesThisMonth   int `json:"ai_parses_this_month"`
	} `json:"usage"`
	Addons struct {
		Personal      []string               `json:"personal"`
		Organizations map[uuid.UUID][]string `json:"organizations"`
	} `json:"addons"`
}

// Entitlements handles GET /api/me/entitlements.
func (h *Handler) Entitlements(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	plan, err := h.resolver.ResolvePlan(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to resolve plan")
		return
	}

	var resp EntitlementsResponse
	resp.Plan.Slug = plan.Slug
	resp.Plan.Name = plan.Name
	resp.Plan.Limits = plan.Limits

	count, err := h.collections.CountPersonal(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to count collections")
		return
	}
	resp.Usage.PersonalCollections = count

	used, err := h.usage.Used(ctx, userID)
	if err != nil {
		// Quota lives in Redis and fails open; report zero rather than erroring.
		h.logger.Warn("read parse usage", zap.Error(err))
		used = 0
	}
	resp.Usage.AIParsesThisMonth = used

	personal, err := h.addons.ActiveUserSlugs(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load addons")
		return
	}
	orgs, err := h.addons.ActiveOrgSlugsForUser(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load organization addons")
		return
	}
	resp.Addons.Personal = personal
	resp.Addons.Organizations = orgs
	if resp.Addons.Personal == nil {
		resp.Addons.Personal = []string{}
	}
	if resp.Addons.Organizations == nil {
		resp.Addons.Organizations = map[uuid.UUID][]string{}
	}

	response.OK(c, resp)
}
