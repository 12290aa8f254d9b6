package listings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseListingText(t *testing.T) {
	t.Run("full advertisement", func(t *testing.T) {
		text := "Bright 3-bedroom apartment, 75 m2, 2nd floor, with balcony and parking.\n" +
			"Price: €450,000. Address: 12 Rose Street, Dublin"
		p := ParseListingText(text)

		require.NotNil(t, p.Price)
		require.Equal(t, 450000.0, *p.Price)
		require.Equal(t, "EUR", p.Currency)
		require.NotNil(t, p.Rooms)
		require.Equal(t, 3.0, *p.Rooms)
		require.NotNil(t, p.AreaM2)
		require.Equal(t, 75.0, *p.AreaM2)
		require.NotNil(t, p.Floor)
		require.Equal(t, 2, *p.Floor)
		require.Equal(t, "12 Rose Street, Dublin", p.Address)
		require.Equal(t, []string{"balcony", "parking"}, p.Amenities)
	})

	t.Run("shorthand price with k suffix", func(t *testing.T) {
		p := ParseListingText("Cozy studio for $320k near the park")
		require.NotNil(t, p.Price)
		require.Equal(t, 320000.0, *p.Price)
		require.Equal(t, "USD", p.Currency)
	})

	t.Run("spelled out currency after the amount", func(t *testing.T) {
		p := ParseListingText("asking 1 250 000 EUR, 4 rooms")
		require.NotNil(t, p.Price)
		require.Equal(t, 1250000.0, *p.Price)
		require.Equal(t, "EUR", p.Currency)
		require.NotNil(t, p.Rooms)
		require.Equal(t, 4.0, *p.Rooms)
	})

	t.Run("ground floor is zero", func(t *testing.T) {
		p := ParseListingText("ground floor flat with garden")
		require.NotNil(t, p.Floor)
		require.Equal(t, 0, *p.Floor)
		require.Equal(t, []string{"garden"}, p.Amenities)
	})

	t.Run("half rooms", func(t *testing.T) {
		p := ParseListingText("charming 2.5 room apartment")
		require.NotNil(t, p.Rooms)
		require.Equal(t, 2.5, *p.Rooms)
	})

	t.Run("street address without a label", func(t *testing.T) {
		p := ParseListingText("Viewings at 221 Baker Street on Sunday")
		require.Equal(t, "221 Baker Street", p.Address)
	})

	t.Run("no amenity inside other words", func(t *testing.T) {
		p := ParseListingText("close to Liverpool station")
		require.Empty(t, p.Amenities)
	})

	t.Run("nothing extractable", func(t *testing.T) {
		p := ParseListingText("call me maybe")
		require.True(t, p.Empty())
	})

	t.Run("same input gives same output", func(t *testing.T) {
		text := "2 bed flat, 60 sqm, lift, furnished, £299,950"
		first := ParseListingText(text)
		second := ParseListingText(text)
		require.Equal(t, first, second)
		require.Equal(t, []string{"elevator", "furnished"}, first.Amenities)
		require.Equal(t, "GBP", first.Currency)
	})
}
