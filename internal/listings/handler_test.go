package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/internal/organizations"
)

type fakeStore struct {
	listings map[uuid.UUID]*models.Listing
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: make(map[uuid.UUID]*models.Listing)}
}

func (f *fakeStore) add(l *models.Listing) *models.Listing {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	f.listings[l.ID] = l
	return l
}

func (f *fakeStore) Create(_ context.Context, collectionID, createdBy uuid.UUID, payload json.RawMessage) (*models.Listing, error) {
	return f.add(&models.Listing{CollectionID: collectionID, CreatedBy: createdBy, Payload: payload}), nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (f *fakeStore) ListForCollection(_ context.Context, collectionID uuid.UUID) ([]models.Listing, error) {
	var out []models.Listing
	for _, l := range f.listings {
		if l.CollectionID == collectionID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) CountForCollection(_ context.Context, collectionID uuid.UUID) (int, error) {
	n := 0
	for _, l := range f.listings {
		if l.CollectionID == collectionID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpdatePayload(_ context.Context, id uuid.UUID, payload json.RawMessage) (*models.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	l.Payload = payload
	return l, nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.listings[id]; !ok {
		return ErrNotFound
	}
	delete(f.listings, id)
	return nil
}

type fakeCols struct {
	cols map[uuid.UUID]*models.Collection
}

func (f *fakeCols) GetByID(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	c, ok := f.cols[id]
	if !ok {
		return nil, collections.ErrNotFound
	}
	return c, nil
}

type fakeRoles struct {
	roles map[uuid.UUID]models.OrgRole
}

func (f *fakeRoles) GetMemberRole(_ context.Context, _ uuid.UUID, userID uuid.UUID) (models.OrgRole, error) {
	role, ok := f.roles[userID]
	if !ok {
		return "", organizations.ErrNotMember
	}
	return role, nil
}

type fakePlans struct {
	limits models.PlanLimits
}

func (f *fakePlans) ResolveLimits(_ context.Context, _ uuid.UUID) (models.PlanLimits, error) {
	return f.limits, nil
}

type fakeQuota struct {
	allow bool
	calls int
}

func (f *fakeQuota) Allow(_ context.Context, _ uuid.UUID, _ int) (bool, error) {
	f.calls++
	return f.allow, nil
}

func setupRouter(h *Handler, actor uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, actor)
		c.Next()
	})
	r.GET("/api/collections/:id/listings", h.List)
	r.POST("/api/collections/:id/listings", h.Create)
	r.POST("/api/collections/:id/listings/parse", h.Parse)
	r.GET("/api/collections/:id/listings/:listingId", h.Get)
	r.PUT("/api/collections/:id/listings/:listingId", h.Update)
	r.DELETE("/api/collections/:id/listings/:listingId", h.Delete)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestCreateListing_PayloadValidation(t *testing.T) {
	userID := uuid.New()
	colID := uuid.New()
	cols := &fakeCols{cols: map[uuid.UUID]*models.Collection{
		colID: {ID: colID, UserID: &userID},
	}}
	roles := &fakeRoles{}
	plans := &fakePlans{limits: models.PlanLimits{MaxListingsPerCollection: -1}}

	newRouter := func(store *fakeStore) *gin.Engine {
		h := NewHandler(store, cols, collections.NewAccess(roles), plans, &fakeQuota{allow: true}, nil, nil, nil, zap.NewNop())
		return setupRouter(h, userID)
	}
	path := "/api/collections/" + colID.String() + "/listings"

	t.Run("object payload is accepted", func(t *testing.T) {
		store := newFakeStore()
		rec, _ := doJSON(t, newRouter(store), http.MethodPost, path,
			[]byte(`{"payload": {"price": 450000, "rooms": 3}}`))
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, store.listings, 1)
	})

	t.Run("array payload is rejected", func(t *testing.T) {
		store := newFakeStore()
		rec, env := doJSON(t, newRouter(store), http.MethodPost, path,
			[]byte(`{"payload": [1, 2, 3]}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "validation", env.Error.Code)
		require.Empty(t, store.listings)
	})

	t.Run("scalar payload is rejected", func(t *testing.T) {
		store := newFakeStore()
		rec, _ := doJSON(t, newRouter(store), http.MethodPost, path,
			[]byte(`{"payload": "just text"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, store.listings)
	})

	t.Run("oversized payload is rejected", func(t *testing.T) {
		store := newFakeStore()
		big := `{"payload": {"blob": "` + strings.Repeat("x", models.MaxListingPayloadBytes) + `"}}`
		rec, _ := doJSON(t, newRouter(store), http.MethodPost, path, []byte(big))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, store.listings)
	})
}

func TestCreateListing_PlanCap(t *testing.T) {
	userID := uuid.New()
	colID := uuid.New()
	cols := &fakeCols{cols: map[uuid.UUID]*models.Collection{
		colID: {ID: colID, UserID: &userID},
	}}
	plans := &fakePlans{limits: models.PlanLimits{MaxListingsPerCollection: 1}}

	store := newFakeStore()
	store.add(&models.Listing{CollectionID: colID})

	h := NewHandler(store, cols, collections.NewAccess(&fakeRoles{}), plans, &fakeQuota{allow: true}, nil, nil, nil, zap.NewNop())
	rec, env := doJSON(t, setupRouter(h, userID), http.MethodPost,
		"/api/collections/"+colID.String()+"/listings",
		[]byte(`{"payload": {}}`))

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", env.Error.Code)
	require.Len(t, store.listings, 1)
}

func TestListingGates(t *testing.T) {
	orgID := uuid.New()
	colID := uuid.New()
	member := uuid.New()
	admin := uuid.New()
	stranger := uuid.New()

	cols := &fakeCols{cols: map[uuid.UUID]*models.Collection{
		colID: {ID: colID, OrganizationID: &orgID},
	}}
	roles := &fakeRoles{roles: map[uuid.UUID]models.OrgRole{
		member: models.OrgRoleMember,
		admin:  models.OrgRoleAdmin,
	}}
	plans := &fakePlans{limits: models.PlanLimits{MaxListingsPerCollection: -1}}

	store := newFakeStore()
	l := store.add(&models.Listing{CollectionID: colID, Payload: json.RawMessage(`{}`)})
	h := NewHandler(store, cols, collections.NewAccess(roles), plans, &fakeQuota{allow: true}, nil, nil, nil, zap.NewNop())

	base := "/api/collections/" + colID.String() + "/listings"

	t.Run("member contributes but cannot delete", func(t *testing.T) {
		rec, _ := doJSON(t, setupRouter(h, member), http.MethodPost, base, []byte(`{"payload": {}}`))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec, env := doJSON(t, setupRouter(h, member), http.MethodDelete, base+"/"+l.ID.String(), nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "forbidden", env.Error.Code)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec, _ := doJSON(t, setupRouter(h, admin), http.MethodDelete, base+"/"+l.ID.String(), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("stranger sees nothing", func(t *testing.T) {
		rec, env := doJSON(t, setupRouter(h, stranger), http.MethodGet, base, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "forbidden", env.Error.Code)
	})
}

type fakePhotoKeys struct {
	keys map[uuid.UUID][]string
}

func (f *fakePhotoKeys) ListKeysForListing(_ context.Context, listingID uuid.UUID) ([]string, error) {
	return f.keys[listingID], nil
}

type fakeCleanup struct {
	enqueued [][]string
}

func (f *fakeCleanup) EnqueuePhotoCleanup(_ context.Context, keys []string) error {
	f.enqueued = append(f.enqueued, keys)
	return nil
}

func TestDeleteListing_QueuesPhotoCleanup(t *testing.T) {
	userID := uuid.New()
	colID := uuid.New()
	cols := &fakeCols{cols: map[uuid.UUID]*models.Collection{
		colID: {ID: colID, UserID: &userID},
	}}
	plans := &fakePlans{limits: models.PlanLimits{MaxListingsPerCollection: -1}}

	store := newFakeStore()
	l := store.add(&models.Listing{CollectionID: colID, Payload: json.RawMessage(`{}`)})
	photoKeys := &fakePhotoKeys{keys: map[uuid.UUID][]string{
		l.ID: {"photos/a/1.jpg", "photos/a/2.jpg"},
	}}
	cleanup := &fakeCleanup{}
	h := NewHandler(store, cols, collections.NewAccess(&fakeRoles{}), plans, &fakeQuota{allow: true}, nil, photoKeys, cleanup, zap.NewNop())

	rec, _ := doJSON(t, setupRouter(h, userID), http.MethodDelete,
		"/api/collections/"+colID.String()+"/listings/"+l.ID.String(), nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, store.listings)
	require.Len(t, cleanup.enqueued, 1)
	require.ElementsMatch(t, []string{"photos/a/1.jpg", "photos/a/2.jpg"}, cleanup.enqueued[0])
}

func TestParse_Quota(t *testing.T) {
	userID := uuid.New()
	colID := uuid.New()
	cols := &fakeCols{cols: map[uuid.UUID]*models.Collection{
		colID: {ID: colID, UserID: &userID},
	}}
	path := "/api/collections/" + colID.String() + "/listings/parse"

	t.Run("over quota returns rate limit", func(t *testing.T) {
		quota := &fakeQuota{allow: false}
		plans := &fakePlans{limits: models.PlanLimits{AIParsesPerMonth: 5}}
		h := NewHandler(newFakeStore(), cols, collections.NewAccess(&fakeRoles{}), plans, quota, nil, nil, nil, zap.NewNop())

		rec, env := doJSON(t, setupRouter(h, userID), http.MethodPost, path,
			[]byte(`{"text": "3 rooms, 75 m2"}`))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "rate_limit", env.Error.Code)
		require.Equal(t, 1, quota.calls)
	})

	t.Run("unlimited plan skips the counter", func(t *testing.T) {
		quota := &fakeQuota{allow: false}
		plans := &fakePlans{limits: models.PlanLimits{AIParsesPerMonth: -1}}
		h := NewHandler(newFakeStore(), cols, collections.NewAccess(&fakeRoles{}), plans, quota, nil, nil, nil, zap.NewNop())

		rec, env := doJSON(t, setupRouter(h, userID), http.MethodPost, path,
			[]byte(`{"text": "3 rooms, 75 m2, balcony"}`))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Zero(t, quota.calls)

		var parsed ParsedListing
		require.NoError(t, json.Unmarshal(env.Data, &parsed))
		require.NotNil(t, parsed.Rooms)
		require.Equal(t, 3.0, *parsed.Rooms)
		require.Equal(t, []string{"balcony"}, parsed.Amenities)
	})
}
