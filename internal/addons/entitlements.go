package addons

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/response"
)

// GrantSource loads grant rows. Implemented by *Repository.
type GrantSource interface {
	GetUserGrant(ctx context.Context, userID uuid.UUID, slug string) (*models.AddonGrant, error)
	GetOrgGrant(ctx context.Context, orgID uuid.UUID, slug string) (*models.AddonGrant, error)
}

// Entitlements answers addon access questions. Lookups hit the database
// every time; grant churn is low and staleness would cost more than the
// extra query.
type Entitlements struct {
	grants GrantSource
}

// NewEntitlements creates the entitlement resolver.
func NewEntitlements(grants GrantSource) *Entitlements {
	return &Entitlements{grants: grants}
}

// HasAddonAccess reports whether the user may use the addon. The
// personal grant is checked first; when an organization context is
// supplied, an active org grant also confers access. A disabled or
// expired personal grant does not veto an active org grant.
func (e *Entitlements) HasAddonAccess(ctx context.Context, userID uuid.UUID, slug string, orgID *uuid.UUID) (bool, error) {
	now := time.Now()

	personal, err := e.grants.GetUserGrant(ctx, userID, slug)
	if err != nil && !errors.Is(err, ErrGrantNotFound) {
		return false, err
	}
	if personal != nil && personal.Active(now) {
		return true, nil
	}

	if orgID == nil {
		return false, nil
	}
	org, err := e.grants.GetOrgGrant(ctx, *orgID, slug)
	if errors.Is(err, ErrGrantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return org.Active(now), nil
}

// Require checks access and writes the forbidden response when the
// addon is missing. Returns true when the request may proceed.
func (e *Entitlements) Require(c *gin.Context, userID uuid.UUID, slug string, orgID *uuid.UUID) bool {
	ok, err := e.HasAddonAccess(c.Request.Context(), userID, slug, orgID)
	if err != nil {
		response.Internal(c, "failed to check addon access")
		return false
	}
	if !ok {
		response.Forbidden(c, "the "+slug+" addon is not enabled for your account")
		return false
	}
	return true
}
