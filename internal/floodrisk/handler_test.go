package floodrisk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/addons"
	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/listings"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
)

type fakeListings struct {
	rows map[uuid.UUID]*models.Listing
}

func (f *fakeListings) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	l, ok := f.rows[id]
	if !ok {
		return nil, listings.ErrNotFound
	}
	return l, nil
}

type fakeCols struct {
	rows map[uuid.UUID]*models.Collection
}

func (f *fakeCols) GetByID(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	c, ok := f.rows[id]
	if !ok {
		return nil, collections.ErrNotFound
	}
	return c, nil
}

type fakeRoles struct {
	members map[uuid.UUID]models.OrgRole
}

func (f *fakeRoles) GetMemberRole(_ context.Context, _ uuid.UUID, userID uuid.UUID) (models.OrgRole, error) {
	role, ok := f.members[userID]
	if !ok {
		return "", organizations.ErrNotMember
	}
	return role, nil
}

type fakeGrants struct {
	user map[uuid.UUID][]string
	org  map[uuid.UUID][]string
}

func hasSlug(list []string, slug string) bool {
	for _, s := range list {
		if s == slug {
			return true
		}
	}
	return false
}

func (f *fakeGrants) GetUserGrant(_ context.Context, userID uuid.UUID, slug string) (*models.AddonGrant, error) {
	if hasSlug(f.user[userID], slug) {
		return &models.AddonGrant{Enabled: true}, nil
	}
	return nil, addons.ErrGrantNotFound
}

func (f *fakeGrants) GetOrgGrant(_ context.Context, orgID uuid.UUID, slug string) (*models.AddonGrant, error) {
	if hasSlug(f.org[orgID], slug) {
		return &models.AddonGrant{Enabled: true}, nil
	}
	return nil, addons.ErrGrantNotFound
}

func serveFloodRisk(h *Handler, actor, listingID uuid.UUID) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, actor)
		c.Next()
	})
	r.GET("/api/listings/:id/flood-risk", h.Get)
	req := httptest.NewRequest(http.MethodGet, "/api/listings/"+listingID.String()+"/flood-risk", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestFloodRiskEntitlement(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()

	personalCol := &models.Collection{ID: uuid.New(), UserID: &userID}
	orgCol := &models.Collection{ID: uuid.New(), OrganizationID: &orgID}
	payload := json.RawMessage(`{"elevation_m": 1, "distance_to_water_m": 50}`)

	personalListing := &models.Listing{ID: uuid.New(), CollectionID: personalCol.ID, Payload: payload}
	orgListing := &models.Listing{ID: uuid.New(), CollectionID: orgCol.ID, Payload: payload}

	listingSrc := &fakeListings{rows: map[uuid.UUID]*models.Listing{
		personalListing.ID: personalListing,
		orgListing.ID:      orgListing,
	}}
	cols := &fakeCols{rows: map[uuid.UUID]*models.Collection{
		personalCol.ID: personalCol,
		orgCol.ID:      orgCol,
	}}
	roles := &fakeRoles{members: map[uuid.UUID]models.OrgRole{userID: models.OrgRoleMember}}
	access := collections.NewAccess(roles)

	newHandler := func(grants *fakeGrants) *Handler {
		return NewHandler(listingSrc, cols, access, addons.NewEntitlements(grants), zap.NewNop())
	}

	t.Run("no grant is forbidden", func(t *testing.T) {
		h := newHandler(&fakeGrants{})
		rec := serveFloodRisk(h, userID, personalListing.ID)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("personal grant unlocks personal listings", func(t *testing.T) {
		h := newHandler(&fakeGrants{user: map[uuid.UUID][]string{userID: {models.AddonFloodRisk}}})
		rec := serveFloodRisk(h, userID, personalListing.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data Assessment `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, BandSevere, body.Data.Band)
	})

	t.Run("org grant unlocks org listings only", func(t *testing.T) {
		h := newHandler(&fakeGrants{org: map[uuid.UUID][]string{orgID: {models.AddonFloodRisk}}})

		rec := serveFloodRisk(h, userID, orgListing.ID)
		require.Equal(t, http.StatusOK, rec.Code)

		// the same grant does not cover a personal listing
		rec = serveFloodRisk(h, userID, personalListing.ID)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}
