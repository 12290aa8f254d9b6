package financing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimulate(t *testing.T) {
	t.Run("standard annuity", func(t *testing.T) {
		// 360k over 30 years at 4%: the classic textbook case
		sim, err := Simulate(450000, 90000, 4.0, 30)
		require.NoError(t, err)
		require.Equal(t, 360000.0, sim.Principal)
		require.InDelta(t, 1718.70, sim.MonthlyPayment, 0.01)
		require.InDelta(t, sim.MonthlyPayment*360, sim.TotalPaid, 0.01)
		require.InDelta(t, sim.TotalPaid-360000, sim.TotalInterest, 0.01)
		require.InDelta(t, 4.07, sim.EffectiveRatePercent, 0.01)

		require.Len(t, sim.YearEndBalances, 30)
		require.Equal(t, 1, sim.YearEndBalances[0].Year)
		require.Less(t, sim.YearEndBalances[0].Balance, 360000.0)
		// balances fall monotonically and end at zero
		for i := 1; i < len(sim.YearEndBalances); i++ {
			require.Less(t, sim.YearEndBalances[i].Balance, sim.YearEndBalances[i-1].Balance)
		}
		require.Equal(t, 0.0, sim.YearEndBalances[29].Balance)
	})

	t.Run("zero interest is straight line", func(t *testing.T) {
		sim, err := Simulate(120000, 0, 0, 10)
		require.NoError(t, err)
		require.Equal(t, 1000.0, sim.MonthlyPayment)
		require.Equal(t, 0.0, sim.TotalInterest)
		require.Equal(t, 0.0, sim.EffectiveRatePercent)
		require.Equal(t, 108000.0, sim.YearEndBalances[0].Balance)
	})

	t.Run("input validation", func(t *testing.T) {
		_, err := Simulate(0, 0, 4, 30)
		require.ErrorIs(t, err, ErrInvalidPrice)

		_, err = Simulate(100000, 100000, 4, 30)
		require.ErrorIs(t, err, ErrInvalidDownPayment)

		_, err = Simulate(100000, 0, -1, 30)
		require.ErrorIs(t, err, ErrInvalidRate)

		_, err = Simulate(100000, 0, 4, 0)
		require.ErrorIs(t, err, ErrInvalidTerm)

		_, err = Simulate(100000, 0, 4, 51)
		require.ErrorIs(t, err, ErrInvalidTerm)
	})
}
