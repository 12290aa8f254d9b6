package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	require.Equal(t, 24*time.Hour, svc.TTL())

	userID := uuid.New()
	token, err := svc.Generate(userID, "agent@example.com", true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "agent@example.com", claims.Email)
	require.True(t, claims.IsAdmin)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestJWTValidateRejects(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	userID := uuid.New()

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService("other-secret", 24)
		token, err := other.Generate(userID, "agent@example.com", false)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewJWTService("test-secret", -1)
		token, err := past.Generate(userID, "agent@example.com", false)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
