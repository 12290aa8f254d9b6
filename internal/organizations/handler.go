package organizations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/queue"
	"github.com/nestfolio/backend/pkg/response"
	"github.com/nestfolio/backend/pkg/utils"
)

// InvitationTTL is how long an invitation token stays redeemable.
const InvitationTTL = 14 * 24 * time.Hour

// Store is the persistence surface the handler needs. Implemented by
// *Repository; faked in handler tests.
type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]OrgWithRole, error)
	GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error)
	AddMember(ctx context.Context, orgID, userID uuid.UUID, role models.OrgRole) error
	UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, newRole models.OrgRole) error
	RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error
	CreateInvitation(ctx context.Context, inv *models.OrganizationInvitation) error
	ListInvitations(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationInvitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.OrganizationInvitation, error)
	RevokeInvitation(ctx context.Context, orgID, invID uuid.UUID) error
	AcceptInvitation(ctx context.Context, inv *models.OrganizationInvitation, userID uuid.UUID) error
}

// UserDirectory resolves users by email for member adds. Implemented by
// the auth repository.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// PlanResolver exposes the caller's effective plan limits. Implemented
// by the subscriptions resolver.
type PlanResolver interface {
	ResolveLimits(ctx context.Context, userID uuid.UUID) (models.PlanLimits, error)
}

// InvitationNotifier enqueues invitation email jobs. Implemented by
// *queue.Queue.
type InvitationNotifier interface {
	EnqueueInvitationEmail(ctx context.Context, payload queue.InvitationEmailPayload) error
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	store         Store
	users         UserDirectory
	plans         PlanResolver
	notifier      InvitationNotifier
	publicBaseURL string
	logger        *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(store Store, users UserDirectory, plans PlanResolver, notifier InvitationNotifier, publicBaseURL string, logger *zap.Logger) *Handler {
	return &Handler{store: store, users: users, plans: plans, notifier: notifier, publicBaseURL: publicBaseURL, logger: logger}
}

// requireRole loads the caller's role in the org, writing the error
// response itself when membership is missing.
func (h *Handler) requireRole(c *gin.Context, orgID uuid.UUID) (models.OrgRole, bool) {
	role, err := h.store.GetMemberRole(c.Request.Context(), orgID, middleware.UserID(c))
	if errors.Is(err, ErrNotMember) {
		response.Forbidden(c, "not a member of this organization")
		return "", false
	}
	if err != nil {
		response.Internal(c, "failed to check membership")
		return "", false
	}
	return role, true
}

func orgIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, false
	}
	return id, true
}

// CreateOrganizationRequest is the body for POST /api/organizations.
type CreateOrganizationRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Create handles POST /api/organizations. Plan-gated; the creator
// becomes owner in the same transaction as the insert.
func (h *Handler) Create(c *gin.Context) {
	userID := middleware.UserID(c)
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name required")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 1 || len(req.Name) > 255 {
		response.BadRequest(c, "name must be 1-255 characters")
		return
	}

	limits, err := h.plans.ResolveLimits(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to resolve plan")
		return
	}
	if !limits.CanCreateOrgs {
		response.Forbidden(c, "your plan does not include organizations")
		return
	}

	org := &models.Organization{Name: req.Name, Description: strings.TrimSpace(req.Description), OwnerID: userID}
	if err := h.store.Create(c.Request.Context(), org); err != nil {
		h.logger.Error("create organization", zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}
	response.Created(c, org)
}

// List handles GET /api/organizations. Returns orgs the caller belongs
// to, with the caller's role.
func (h *Handler) List(c *gin.Context) {
	orgs, err := h.store.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to load organizations")
		return
	}
	response.OK(c, orgs)
}

// Get handles GET /api/organizations/:id. Members only.
func (h *Handler) Get(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.requireRole(c, orgID); !ok {
		return
	}
	org, err := h.store.GetByID(c.Request.Context(), orgID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "organization not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load organization")
		return
	}
	response.OK(c, org)
}

// UpdateOrganizationRequest is the body for PUT /api/organizations/:id.
type UpdateOrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Update handles PUT /api/organizations/:id. Owner or admin.
func (h *Handler) Update(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	role, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	if !CanUpdateOrganization(role) {
		response.Forbidden(c, "only owners and admins can update the organization")
		return
	}
	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if len(trimmed) < 1 || len(trimmed) > 255 {
			response.BadRequest(c, "name must be 1-255 characters")
			return
		}
		req.Name = &trimmed
	}
	org, err := h.store.Update(c.Request.Context(), orgID, req.Name, req.Description)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "organization not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to update organization")
		return
	}
	response.OK(c, org)
}

// Delete handles DELETE /api/organizations/:id. Owner only.
func (h *Handler) Delete(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	role, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	if !CanDeleteOrganization(role) {
		response.Forbidden(c, "only owners can delete the organization")
		return
	}
	if err := h.store.Delete(c.Request.Context(), orgID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "organization not found")
			return
		}
		response.Internal(c, "failed to delete organization")
		return
	}
	response.NoContent(c)
}

// ListMembers handles GET /api/organizations/:id/members. Members only.
func (h *Handler) ListMembers(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	if _, ok := h.requireRole(c, orgID); !ok {
		return
	}
	members, err := h.store.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, members)
}

// AddMemberRequest is the body for POST /api/organizations/:id/members.
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// AddMember handles POST /api/organizations/:id/members. Adds an
// existing user directly; non-users go through invitations.
func (h *Handler) AddMember(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	actorRole, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	if !CanManageMembers(actorRole) {
		response.Forbidden(c, "only owners and admins can manage members")
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email and role required")
		return
	}
	newRole := models.OrgRole(req.Role)
	if !newRole.Valid() {
		response.BadRequest(c, "role must be owner, admin, or member")
		return
	}
	if !CanAssignRole(actorRole, newRole) {
		response.Forbidden(c, "only owners can assign the owner role")
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.NotFound(c, "no user with that email")
		return
	}
	if err := h.store.AddMember(c.Request.Context(), orgID, user.ID, newRole); err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			response.Conflict(c, "user is already a member")
			return
		}
		response.Internal(c, "failed to add member")
		return
	}
	response.Created(c, gin.H{"user_id": user.ID, "role": newRole})
}

// UpdateMemberRequest is the body for PUT /api/organizations/:id/members/:userId.
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateMember handles PUT /api/organizations/:id/members/:userId.
func (h *Handler) UpdateMember(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	actorRole, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	newRole := models.OrgRole(req.Role)
	if !newRole.Valid() {
		response.BadRequest(c, "role must be owner, admin, or member")
		return
	}

	targetRole, err := h.store.GetMemberRole(c.Request.Context(), orgID, targetID)
	if errors.Is(err, ErrNotMember) {
		response.NotFound(c, "member not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load member")
		return
	}
	if !CanEditMember(actorRole, targetRole) || !CanAssignRole(actorRole, newRole) {
		response.Forbidden(c, "not allowed to change this member's role")
		return
	}

	if err := h.store.UpdateMemberRole(c.Request.Context(), orgID, targetID, newRole); err != nil {
		switch {
		case errors.Is(err, ErrLastOwner):
			response.Conflict(c, "organization must keep at least one owner")
		case errors.Is(err, ErrNotMember):
			response.NotFound(c, "member not found")
		default:
			response.Internal(c, "failed to update member")
		}
		return
	}
	response.OK(c, gin.H{"user_id": targetID, "role": newRole})
}

// RemoveMember handles DELETE /api/organizations/:id/members/:userId.
// Members may remove themselves; otherwise the member-edit rules apply.
func (h *Handler) RemoveMember(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	actorRole, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}

	if targetID != middleware.UserID(c) {
		targetRole, err := h.store.GetMemberRole(c.Request.Context(), orgID, targetID)
		if errors.Is(err, ErrNotMember) {
			response.NotFound(c, "member not found")
			return
		}
		if err != nil {
			response.Internal(c, "failed to load member")
			return
		}
		if !CanEditMember(actorRole, targetRole) {
			response.Forbidden(c, "not allowed to remove this member")
			return
		}
	}

	if err := h.store.RemoveMember(c.Request.Context(), orgID, targetID); err != nil {
		switch {
		case errors.Is(err, ErrLastOwner):
			response.Conflict(c, "organization must keep at least one owner")
		case errors.Is(err, ErrNotMember):
			response.NotFound(c, "member not found")
		default:
			response.Internal(c, "failed to remove member")
		}
		return
	}
	response.NoContent(c)
}

// InviteRequest is the body for POST /api/organizations/:id/invitations.
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// CreateInvitation handles POST /api/organizations/:id/invitations.
func (h *Handler) CreateInvitation(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	actorRole, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	if !CanManageMembers(actorRole) {
		response.Forbidden(c, "only owners and admins can manage invitations")
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email and role required")
		return
	}
	role := models.OrgRole(req.Role)
	if !role.Valid() {
		response.BadRequest(c, "role must be owner, admin, or member")
		return
	}
	if !CanAssignRole(actorRole, role) {
		response.Forbidden(c, "only owners can invite owners")
		return
	}

	token, err := utils.GenerateToken(32)
	if err != nil {
		response.Internal(c, "failed to generate invitation token")
		return
	}
	inv := &models.OrganizationInvitation{
		OrganizationID: orgID,
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Role:           role,
		Token:          token,
		InvitedBy:      middleware.UserID(c),
		ExpiresAt:      time.Now().Add(InvitationTTL),
	}
	if err := h.store.CreateInvitation(c.Request.Context(), inv); err != nil {
		h.logger.Error("create invitation", zap.Error(err))
		response.Internal(c, "failed to create invitation")
		return
	}

	org, err := h.store.GetByID(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load organization")
		return
	}
	payload := queue.InvitationEmailPayload{
		InvitationID:     inv.ID,
		OrganizationID:   orgID,
		OrganizationName: org.Name,
		RecipientEmail:   inv.Email,
		InviterName:      middleware.UserEmail(c),
		Role:             string(role),
		AcceptURL:        h.publicBaseURL + "/invitations/" + token,
	}
	if err := h.notifier.EnqueueInvitationEmail(c.Request.Context(), payload); err != nil {
		// The invitation row exists and the link works; delivery is best-effort.
		h.logger.Warn("enqueue invitation email", zap.Error(err), zap.String("invitation_id", inv.ID.String()))
	}
	response.Created(c, inv)
}

// ListInvitations handles GET /api/organizations/:id/invitations.
func (h *Handler) ListInvitations(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	actorRole, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	if !CanManageMembers(actorRole) {
		response.Forbidden(c, "only owners and admins can manage invitations")
		return
	}
	list, err := h.store.ListInvitations(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load invitations")
		return
	}
	response.OK(c, list)
}

// RevokeInvitation handles DELETE /api/organizations/:id/invitations/:invID.
func (h *Handler) RevokeInvitation(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}
	invID, err := uuid.Parse(c.Param("invID"))
	if err != nil {
		response.BadRequest(c, "invalid invitation id")
		return
	}
	actorRole, ok := h.requireRole(c, orgID)
	if !ok {
		return
	}
	if !CanManageMembers(actorRole) {
		response.Forbidden(c, "only owners and admins can manage invitations")
		return
	}
	if err := h.store.RevokeInvitation(c.Request.Context(), orgID, invID); err != nil {
		if errors.Is(err, ErrInvitationNotFound) {
			response.NotFound(c, "invitation not found")
			return
		}
		response.Internal(c, "failed to revoke invitation")
		return
	}
	response.NoContent(c)
}

// AcceptInvitation handles POST /api/invitations/:token/accept.
// Authenticated; the token is the credential, no email match required.
func (h *Handler) AcceptInvitation(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.BadRequest(c, "invitation token required")
		return
	}
	inv, err := h.store.GetInvitationByToken(c.Request.Context(), token)
	if errors.Is(err, ErrInvitationNotFound) {
		response.NotFound(c, "invitation not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load invitation")
		return
	}
	if !inv.Redeemable(time.Now()) {
		response.Conflict(c, "invitation is expired or no longer pending")
		return
	}
	if err := h.store.AcceptInvitation(c.Request.Context(), inv, middleware.UserID(c)); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyMember):
			response.Conflict(c, "you are already a member")
		case errors.Is(err, ErrInvitationNotPending):
			response.Conflict(c, "invitation is no longer pending")
		default:
			response.Internal(c, "failed to accept invitation")
		}
		return
	}
	response.OK(c, gin.H{"organization_id": inv.OrganizationID, "role": inv.Role})
}
