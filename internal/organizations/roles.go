package organizations

import "github.com/nestfolio/backend/internal/models"

// Role predicates. Organization permissions are evaluated per-request
// from the member's stored role; there is no permission table.

// CanManageMembers reports whether the role may add, edit, or remove
// members and manage invitations.
func CanManageMembers(role models.OrgRole) bool {
	return role == models.OrgRoleOwner || role == models.OrgRoleAdmin
}

// CanUpdateOrganization reports whether the role may edit the
// organization's name and description.
func CanUpdateOrganization(role models.OrgRole) bool {
	return role == models.OrgRoleOwner || role == models.OrgRoleAdmin
}

// CanDeleteOrganization reports whether the role may delete the organization.
func CanDeleteOrganization(role models.OrgRole) bool {
	return role == models.OrgRoleOwner
}

// CanManageCollections reports whether the role may create, update, or
// delete organization collections and manage their sharing.
func CanManageCollections(role models.OrgRole) bool {
	return role == models.OrgRoleOwner || role == models.OrgRoleAdmin
}

// CanManageAddons reports whether the role may manage organization addon grants.
func CanManageAddons(role models.OrgRole) bool {
	return role == models.OrgRoleOwner || role == models.OrgRoleAdmin
}

// CanEditMember reports whether an actor may change or remove the given
// member. Owners may edit anyone; admins only plain members.
func CanEditMember(actor, target models.OrgRole) bool {
	if actor == models.OrgRoleOwner {
		return true
	}
	return actor == models.OrgRoleAdmin && target == models.OrgRoleMember
}

// CanAssignRole reports whether an actor may hand out the given role.
// Only owners may mint new owners.
func CanAssignRole(actor, newRole models.OrgRole) bool {
	if newRole == models.OrgRoleOwner {
		return actor == models.OrgRoleOwner
	}
	return actor == models.OrgRoleOwner || actor == models.OrgRoleAdmin
}
