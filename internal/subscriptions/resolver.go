package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nestfolio/backend/internal/models"
)

// ActivePlanSource loads the plan of a user's current subscription.
// Implemented by *Repository.
type ActivePlanSource interface {
	ActivePlan(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Plan, error)
}

// PlanCatalog loads plans by slug. Implemented by the plans repository.
type PlanCatalog interface {
	GetBySlug(ctx context.Context, slug string) (*models.Plan, error)
}

// Resolver resolves a user's effective plan. Every limit check in the
// API goes through here; there is no caching, a miss falls back to the
// seeded free plan.
type Resolver struct {
	subs  ActivePlanSource
	plans PlanCatalog
}

// NewResolver creates a plan resolver.
func NewResolver(subs ActivePlanSource, plans PlanCatalog) *Resolver {
	return &Resolver{subs: subs, plans: plans}
}

// ResolvePlan returns the plan of the newest active unexpired
// subscription, or the free plan when there is none.
func (r *Resolver) ResolvePlan(ctx context.Context, userID uuid.UUID) (*models.Plan, error) {
	plan, err := r.subs.ActivePlan(ctx, userID, time.Now())
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, ErrNoActive) {
		return nil, err
	}
	return r.plans.GetBySlug(ctx, models.FreePlanSlug)
}

// ResolveLimits returns the effective plan's limits.
func (r *Resolver) ResolveLimits(ctx context.Context, userID uuid.UUID) (models.PlanLimits, error) {
	plan, err := r.ResolvePlan(ctx, userID)
	if err != nil {
		return models.PlanLimits{}, err
	}
	return plan.Limits, nil
}
