package addons

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nestfolio/backend/internal/models"
)

type fakeGrantSource struct {
	user map[string]*models.AddonGrant
	org  map[string]*models.AddonGrant
	err  error
}

func (f *fakeGrantSource) GetUserGrant(_ context.Context, userID uuid.UUID, slug string) (*models.AddonGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.user[userID.String()+"/"+slug]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return g, nil
}

func (f *fakeGrantSource) GetOrgGrant(_ context.Context, orgID uuid.UUID, slug string) (*models.AddonGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.org[orgID.String()+"/"+slug]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return g, nil
}

func grant(enabled bool, expiresAt *time.Time) *models.AddonGrant {
	return &models.AddonGrant{ID: uuid.New(), Enabled: enabled, ExpiresAt: expiresAt}
}

func TestHasAddonAccess(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	userKey := userID.String() + "/flood-risk"
	orgKey := orgID.String() + "/flood-risk"

	t.Run("active personal grant", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{user: map[string]*models.AddonGrant{userKey: grant(true, nil)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("personal grant with future expiry", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{user: map[string]*models.AddonGrant{userKey: grant(true, &future)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("expired personal grant denies", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{user: map[string]*models.AddonGrant{userKey: grant(true, &past)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("disabled personal grant denies", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{user: map[string]*models.AddonGrant{userKey: grant(false, nil)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("no grants at all denies", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("org grant covers member", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{org: map[string]*models.AddonGrant{orgKey: grant(true, nil)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", &orgID)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("disabled personal does not veto org grant", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{
			user: map[string]*models.AddonGrant{userKey: grant(false, nil)},
			org:  map[string]*models.AddonGrant{orgKey: grant(true, nil)},
		})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", &orgID)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("org grant ignored without org context", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{org: map[string]*models.AddonGrant{orgKey: grant(true, nil)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("expired org grant denies", func(t *testing.T) {
		e := NewEntitlements(&fakeGrantSource{org: map[string]*models.AddonGrant{orgKey: grant(true, &past)}})
		ok, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", &orgID)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("store error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		e := NewEntitlements(&fakeGrantSource{err: boom})
		_, err := e.HasAddonAccess(context.Background(), userID, "flood-risk", nil)
		require.ErrorIs(t, err, boom)
	})
}
