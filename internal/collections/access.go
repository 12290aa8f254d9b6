package collections

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
)

// MemberRoles resolves a user's role inside an organization. Implemented
// by the organizations repository.
type MemberRoles interface {
	GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error)
}

// Access answers who may do what with a collection. Personal collections
// belong to exactly one user; org collections defer to the member's role.
type Access struct {
	roles MemberRoles
}

// NewAccess creates an access resolver.
func NewAccess(roles MemberRoles) *Access {
	return &Access{roles: roles}
}

func (a *Access) orgRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, bool, error) {
	role, err := a.roles.GetMemberRole(ctx, orgID, userID)
	if errors.Is(err, organizations.ErrNotMember) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve org role: %w", err)
	}
	return role, true, nil
}

// CanView reports read access: the personal owner, any org member, or a
// platform admin.
func (a *Access) CanView(ctx context.Context, c *models.Collection, userID uuid.UUID, isAdmin bool) (bool, error) {
	if isAdmin {
		return true, nil
	}
	if c.UserID != nil {
		return *c.UserID == userID, nil
	}
	if c.OrganizationID == nil {
		return false, nil
	}
	_, member, err := a.orgRole(ctx, *c.OrganizationID, userID)
	return member, err
}

// CanContribute reports listing create/update access: the personal owner
// or any member of the owning organization.
func (a *Access) CanContribute(ctx context.Context, c *models.Collection, userID uuid.UUID) (bool, error) {
	if c.UserID != nil {
		return *c.UserID == userID, nil
	}
	if c.OrganizationID == nil {
		return false, nil
	}
	_, member, err := a.orgRole(ctx, *c.OrganizationID, userID)
	return member, err
}

// CanManage reports collection-level write access (update, delete,
// sharing, listing deletion): the personal owner, or an org owner|admin.
func (a *Access) CanManage(ctx context.Context, c *models.Collection, userID uuid.UUID) (bool, error) {
	if c.UserID != nil {
		return *c.UserID == userID, nil
	}
	if c.OrganizationID == nil {
		return false, nil
	}
	role, member, err := a.orgRole(ctx, *c.OrganizationID, userID)
	if err != nil || !member {
		return false, err
	}
	return organizations.CanManageCollections(role), nil
}
