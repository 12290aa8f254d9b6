package floodrisk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssess(t *testing.T) {
	t.Run("riverside ground floor with basement is severe", func(t *testing.T) {
		a, err := Assess(json.RawMessage(`{
			"elevation_m": 1.5,
			"distance_to_water_m": 40,
			"floor": 0,
			"basement": true
		}`))
		require.NoError(t, err)
		require.Equal(t, 100, a.Score)
		require.Equal(t, BandSevere, a.Band)
		require.Contains(t, a.Factors, "very low elevation")
		require.Contains(t, a.Factors, "adjacent to water")
		require.Contains(t, a.Factors, "ground floor")
		require.Contains(t, a.Factors, "basement present")
	})

	t.Run("hilltop upper floor is low", func(t *testing.T) {
		a, err := Assess(json.RawMessage(`{
			"elevation_m": 120,
			"distance_to_water_m": 5000,
			"floor": 6
		}`))
		require.NoError(t, err)
		require.Equal(t, 0, a.Score)
		require.Equal(t, BandLow, a.Band)
	})

	t.Run("missing fields fall back to the base score", func(t *testing.T) {
		a, err := Assess(json.RawMessage(`{"price": 450000}`))
		require.NoError(t, err)
		require.Equal(t, baseScore, a.Score)
		require.Equal(t, BandModerate, a.Band)
		require.Empty(t, a.Factors)
	})

	t.Run("bands cover the whole range", func(t *testing.T) {
		require.Equal(t, BandLow, band(0))
		require.Equal(t, BandLow, band(24))
		require.Equal(t, BandModerate, band(25))
		require.Equal(t, BandModerate, band(49))
		require.Equal(t, BandHigh, band(50))
		require.Equal(t, BandHigh, band(74))
		require.Equal(t, BandSevere, band(75))
		require.Equal(t, BandSevere, band(100))
	})

	t.Run("same payload gives same assessment", func(t *testing.T) {
		payload := json.RawMessage(`{"elevation_m": 8, "distance_to_water_m": 300, "basement": false}`)
		first, err := Assess(payload)
		require.NoError(t, err)
		second, err := Assess(payload)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, baseScore+15+15, first.Score)
		require.Equal(t, BandHigh, first.Band)
	})

	t.Run("malformed payload errors", func(t *testing.T) {
		_, err := Assess(json.RawMessage(`{"elevation_m": "high"}`))
		require.Error(t, err)
	})
}
