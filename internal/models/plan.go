package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanLimits is the usage envelope of a plan, stored as jsonb.
// A count of -1 means unlimited.
type PlanLimits struct {
	MaxCollections           int  `json:"max_collections"`
	MaxListingsPerCollection int  `json:"max_listings_per_collection"`
	AIParsesPerMonth         int  `json:"ai_parses_per_month"`
	CanShare                 bool `json:"can_share"`
	CanCreateOrgs            bool `json:"can_create_orgs"`
}

// Unlimited reports whether a limit value disables the cap.
func Unlimited(limit int) bool {
	return limit < 0
}

// Plan is a priced subscription tier.
type Plan struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	PriceCents      int        `json:"price_cents"`
	Currency        string     `json:"currency"`
	BillingInterval string     `json:"billing_interval,omitempty"` // "month", "year" or "" for unbilled
	Limits          PlanLimits `json:"limits"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FreePlanSlug is the fallback plan applied when a user has no active
// subscription.
const FreePlanSlug = "free"
