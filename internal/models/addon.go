package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known addon slugs seeded by the migrations.
const (
	AddonFloodRisk = "flood-risk"
	AddonFinancing = "financing-simulator"
)

// Addon is an optional named feature gated by grant records.
type Addon struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int       `json:"price_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AddonGrant associates a principal (user or organization) with an addon.
// Effective access requires enabled and an unexpired (or absent) expiry.
type AddonGrant struct {
	ID          uuid.UUID  `json:"id"`
	PrincipalID uuid.UUID  `json:"-"`
	AddonID     uuid.UUID  `json:"addon_id"`
	AddonSlug   string     `json:"addon_slug"`
	Enabled     bool       `json:"enabled"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Active reports whether the grant confers access at the given instant.
func (g *AddonGrant) Active(now time.Time) bool {
	if !g.Enabled {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}
