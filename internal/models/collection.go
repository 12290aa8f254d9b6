package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection is a named bucket of listings owned by exactly one of a user or
// an organization. Mutually exclusive ownership is enforced in application
// logic, not by a database constraint.
type Collection struct {
	ID             uuid.UUID  `json:"id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	IsDefault      bool       `json:"is_default"`
	IsPublic       bool       `json:"is_public"`
	ShareToken     *string    `json:"share_token,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Personal reports whether the collection is user-owned.
func (c *Collection) Personal() bool {
	return c.UserID != nil
}

// SharedCollection is the sanitized public view served for share links.
// It must never carry owner identifiers, the share token, or the public flag.
type SharedCollection struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	ListingCount int             `json:"listing_count"`
	Listings     []SharedListing `json:"listings"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
