package sharing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/models"
)

type fakeCols struct {
	byToken map[string]*models.Collection
}

func (f *fakeCols) GetByShareToken(_ context.Context, token string) (*models.Collection, error) {
	c, ok := f.byToken[token]
	if !ok {
		return nil, collections.ErrNotFound
	}
	return c, nil
}

type fakeListings struct {
	rows []models.Listing
}

func (f *fakeListings) ListForCollection(_ context.Context, _ uuid.UUID) ([]models.Listing, error) {
	return f.rows, nil
}

type fakePhotos struct {
	rows []models.ListingPhoto
}

func (f *fakePhotos) ListForListing(_ context.Context, _ uuid.UUID) ([]models.ListingPhoto, error) {
	return f.rows, nil
}

type fakePresigner struct{}

func (fakePresigner) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.test/get/" + key, nil
}

func (fakePresigner) PresignExpire() time.Duration { return time.Minute }

func serveShared(h *Handler, token string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/shared/:token", h.Get)
	req := httptest.NewRequest(http.MethodGet, "/api/shared/"+token, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSharedView(t *testing.T) {
	userID := uuid.New()
	token := "tok-public"
	revokedToken := "tok-revoked"

	public := &models.Collection{
		ID: uuid.New(), UserID: &userID, Name: "Dream homes",
		IsPublic: true, ShareToken: &token,
	}
	revoked := &models.Collection{
		ID: uuid.New(), UserID: &userID, Name: "Hidden",
		IsPublic: false, ShareToken: &revokedToken,
	}
	cols := &fakeCols{byToken: map[string]*models.Collection{
		token:        public,
		revokedToken: revoked,
	}}
	listing := models.Listing{
		ID:           uuid.New(),
		CollectionID: public.ID,
		Payload:      json.RawMessage(`{"price": 450000}`),
		CreatedBy:    userID,
	}
	photos := &fakePhotos{rows: []models.ListingPhoto{
		{ID: uuid.New(), ListingID: listing.ID, ObjectKey: "photos/a/b.jpg"},
	}}

	h := NewHandler(cols, &fakeListings{rows: []models.Listing{listing}}, photos, fakePresigner{}, zap.NewNop())

	t.Run("unknown token is 404", func(t *testing.T) {
		rec := serveShared(h, "nope")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("revoked token is 403", func(t *testing.T) {
		rec := serveShared(h, revokedToken)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("public token returns the sanitized view", func(t *testing.T) {
		rec := serveShared(h, token)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data models.SharedCollection `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Dream homes", body.Data.Name)
		require.Equal(t, 1, body.Data.ListingCount)
		require.Len(t, body.Data.Listings, 1)
		require.Equal(t, []string{"https://s3.test/get/photos/a/b.jpg"}, body.Data.Listings[0].PhotoURLs)

		// owner identifiers and share state must not leak
		raw := rec.Body.String()
		require.NotContains(t, raw, "user_id")
		require.NotContains(t, raw, "share_token")
		require.NotContains(t, raw, "is_public")
		require.NotContains(t, raw, userID.String())
	})
}
