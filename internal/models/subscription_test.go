package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionEffectiveStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("active with future expiry stays active", func(t *testing.T) {
		s := &Subscription{Status: SubscriptionActive, ExpiresAt: &future}
		require.Equal(t, SubscriptionActive, s.EffectiveStatus(now))
		require.True(t, s.Current(now))
	})

	t.Run("active without expiry stays active", func(t *testing.T) {
		s := &Subscription{Status: SubscriptionActive}
		require.Equal(t, SubscriptionActive, s.EffectiveStatus(now))
	})

	t.Run("active past expiry reads as expired without a write", func(t *testing.T) {
		s := &Subscription{Status: SubscriptionActive, ExpiresAt: &past}
		require.Equal(t, SubscriptionExpired, s.EffectiveStatus(now))
		require.False(t, s.Current(now))
		// Stored enum is untouched.
		require.Equal(t, SubscriptionActive, s.Status)
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		s := &Subscription{Status: SubscriptionActive, ExpiresAt: &now}
		require.Equal(t, SubscriptionExpired, s.EffectiveStatus(now))
	})

	t.Run("cancelled never resurrects", func(t *testing.T) {
		s := &Subscription{Status: SubscriptionCancelled, ExpiresAt: &future}
		require.Equal(t, SubscriptionCancelled, s.EffectiveStatus(now))
		require.False(t, s.Current(now))
	})
}
