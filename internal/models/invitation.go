package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the lifecycle state of an organization invitation.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
	InvitationExpired  = "expired"
)

// OrganizationInvitation invites an email address into an organization with a
// target role, redeemable by token until the expiry passes.
type OrganizationInvitation struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email"`
	Role           OrgRole   `json:"role"`
	Token          string    `json:"token,omitempty"`
	InvitedBy      uuid.UUID `json:"invited_by"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Redeemable reports whether the invitation can still be accepted.
func (i *OrganizationInvitation) Redeemable(now time.Time) bool {
	return i.Status == InvitationPending && i.ExpiresAt.After(now)
}
