package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the stored lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription ties a user to a plan. At most one subscription per user is
// stored as active; the stored status may lag behind the expiry date, so
// reads derive the effective status instead of trusting the enum.
type Subscription struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	PlanID    uuid.UUID          `json:"plan_id"`
	Status    SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	Plan *Plan `json:"plan,omitempty"`
}

// EffectiveStatus resolves the display status at the given instant: an active
// row whose expiry has passed reads as expired without a write.
func (s *Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.Status == SubscriptionActive && s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return SubscriptionExpired
	}
	return s.Status
}

// Current reports whether the subscription grants plan access at the given
// instant.
func (s *Subscription) Current(now time.Time) bool {
	return s.EffectiveStatus(now) == SubscriptionActive
}
