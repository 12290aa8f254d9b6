package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
)

// fakeSubStore mirrors the repository's contract: activation expires
// every active row before inserting the new one.
type fakeSubStore struct {
	subs []models.Subscription
}

func (f *fakeSubStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubStore) GetByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	for i := range f.subs {
		if f.subs[i].ID == id {
			return &f.subs[i], nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeSubStore) Activate(_ context.Context, userID, planID uuid.UUID, expiresAt *time.Time) (*models.Subscription, error) {
	for i := range f.subs {
		if f.subs[i].UserID == userID && f.subs[i].Status == models.SubscriptionActive {
			f.subs[i].Status = models.SubscriptionExpired
		}
	}
	sub := models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    planID,
		Status:    models.SubscriptionActive,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.subs = append(f.subs, sub)
	return &sub, nil
}

func (f *fakeSubStore) Update(_ context.Context, id uuid.UUID, status *models.SubscriptionStatus, expiresAt *time.Time, clearExpiry bool) (*models.Subscription, error) {
	for i := range f.subs {
		if f.subs[i].ID == id {
			if status != nil {
				f.subs[i].Status = *status
			}
			if clearExpiry {
				f.subs[i].ExpiresAt = nil
			} else if expiresAt != nil {
				f.subs[i].ExpiresAt = expiresAt
			}
			return &f.subs[i], nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeSubStore) Delete(_ context.Context, id uuid.UUID) error {
	for i := range f.subs {
		if f.subs[i].ID == id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeSubStore) activeCount(userID uuid.UUID) int {
	n := 0
	for _, s := range f.subs {
		if s.UserID == userID && s.Status == models.SubscriptionActive {
			n++
		}
	}
	return n
}

func setupSubRouter(h *Handler, actor uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, actor)
		c.Next()
	})
	r.GET("/api/subscriptions", h.List)
	r.POST("/api/subscriptions", h.Subscribe)
	r.GET("/api/me/entitlements", h.Entitlements)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubscribe(t *testing.T) {
	userID := uuid.New()
	monthly := &models.Plan{ID: uuid.New(), Slug: "plus", Name: "Plus", BillingInterval: "month", IsActive: true}
	unbilled := &models.Plan{ID: uuid.New(), Slug: "free", Name: "Free", IsActive: true}
	catalog := &fakeCatalog{bySlug: map[string]*models.Plan{"plus": monthly, "free": unbilled}}

	newHandler := func(store *fakeSubStore) *Handler {
		return NewHandler(store, catalog, NewResolver(&fakeActiveSource{err: ErrNoActive}, catalog), nil, nil, nil, zap.NewNop())
	}

	t.Run("unknown plan is 404", func(t *testing.T) {
		store := &fakeSubStore{}
		r := setupSubRouter(newHandler(store), userID)
		rec := postJSON(t, r, "/api/subscriptions", gin.H{"plan_slug": "enterprise"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Empty(t, store.subs)
	})

	t.Run("monthly plan gets a 30 day expiry", func(t *testing.T) {
		store := &fakeSubStore{}
		r := setupSubRouter(newHandler(store), userID)
		rec := postJSON(t, r, "/api/subscriptions", gin.H{"plan_slug": "plus"})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, store.subs, 1)
		require.NotNil(t, store.subs[0].ExpiresAt)
		require.WithinDuration(t, time.Now().Add(30*24*time.Hour), *store.subs[0].ExpiresAt, time.Minute)
	})

	t.Run("unbilled plan never expires", func(t *testing.T) {
		store := &fakeSubStore{}
		r := setupSubRouter(newHandler(store), userID)
		rec := postJSON(t, r, "/api/subscriptions", gin.H{"plan_slug": "free"})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Nil(t, store.subs[0].ExpiresAt)
	})

	t.Run("switching plans keeps exactly one active", func(t *testing.T) {
		store := &fakeSubStore{}
		r := setupSubRouter(newHandler(store), userID)
		require.Equal(t, http.StatusCreated, postJSON(t, r, "/api/subscriptions", gin.H{"plan_slug": "free"}).Code)
		require.Equal(t, http.StatusCreated, postJSON(t, r, "/api/subscriptions", gin.H{"plan_slug": "plus"}).Code)
		require.Equal(t, http.StatusCreated, postJSON(t, r, "/api/subscriptions", gin.H{"plan_slug": "free"}).Code)

		require.Len(t, store.subs, 3)
		require.Equal(t, 1, store.activeCount(userID))
	})
}

type fakeCounter struct{ n int }

func (f *fakeCounter) CountPersonal(_ context.Context, _ uuid.UUID) (int, error) { return f.n, nil }

type fakeUsage struct {
	used int
	err  error
}

func (f *fakeUsage) Used(_ context.Context, _ uuid.UUID) (int, error) { return f.used, f.err }

type fakeAddons struct {
	personal []string
	orgs     map[uuid.UUID][]string
}

func (f *fakeAddons) ActiveUserSlugs(_ context.Context, _ uuid.UUID) ([]string, error) {
	return f.personal, nil
}

func (f *fakeAddons) ActiveOrgSlugsForUser(_ context.Context, _ uuid.UUID) (map[uuid.UUID][]string, error) {
	return f.orgs, nil
}

func TestEntitlements(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	pro := &models.Plan{ID: uuid.New(), Slug: "pro", Name: "Pro", Limits: models.PlanLimits{
		MaxCollections:   -1,
		AIParsesPerMonth: 100,
		CanShare:         true,
	}}
	catalog := &fakeCatalog{bySlug: map[string]*models.Plan{"pro": pro}}

	newHandler := func(usage ParseUsage, addons AddonSnapshot) *Handler {
		resolver := NewResolver(&fakeActiveSource{plan: pro}, catalog)
		return NewHandler(&fakeSubStore{}, catalog, resolver, &fakeCounter{n: 2}, usage, addons, zap.NewNop())
	}

	get := func(t *testing.T, h *Handler) (*httptest.ResponseRecorder, EntitlementsResponse) {
		t.Helper()
		r := setupSubRouter(h, userID)
		req := httptest.NewRequest(http.MethodGet, "/api/me/entitlements", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		var body struct {
			Data EntitlementsResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec, body.Data
	}

	t.Run("snapshot combines plan, usage, and addons", func(t *testing.T) {
		h := newHandler(&fakeUsage{used: 7}, &fakeAddons{
			personal: []string{"flood_risk"},
			orgs:     map[uuid.UUID][]string{orgID: {"financing"}},
		})
		rec, got := get(t, h)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "pro", got.Plan.Slug)
		require.True(t, models.Unlimited(got.Plan.Limits.MaxCollections))
		require.Equal(t, 2, got.Usage.PersonalCollections)
		require.Equal(t, 7, got.Usage.AIParsesThisMonth)
		require.Equal(t, []string{"flood_risk"}, got.Addons.Personal)
		require.Equal(t, []string{"financing"}, got.Addons.Organizations[orgID])
	})

	t.Run("usage read failure reports zero", func(t *testing.T) {
		h := newHandler(&fakeUsage{err: errors.New("redis down")}, &fakeAddons{})
		rec, got := get(t, h)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Zero(t, got.Usage.AIParsesThisMonth)
	})

	t.Run("no addons serializes as empty, not null", func(t *testing.T) {
		h := newHandler(&fakeUsage{}, &fakeAddons{})
		rec, got := get(t, h)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got.Addons.Personal)
		require.NotNil(t, got.Addons.Organizations)
		require.Empty(t, got.Addons.Personal)
		require.Empty(t, got.Addons.Organizations)
	})
}

func TestListSubscriptions_EffectiveStatus(t *testing.T) {
	userID := uuid.New()
	past := time.Now().Add(-time.Hour)
	store := &fakeSubStore{subs: []models.Subscription{
		{ID: uuid.New(), UserID: userID, Status: models.SubscriptionActive, ExpiresAt: &past, Plan: &models.Plan{Slug: "plus"}},
	}}
	catalog := &fakeCatalog{bySlug: map[string]*models.Plan{}}
	h := NewHandler(store, catalog, NewResolver(&fakeActiveSource{err: ErrNoActive}, catalog), nil, nil, nil, zap.NewNop())
	r := setupSubRouter(h, userID)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "expired", body.Data[0].Status)
}
