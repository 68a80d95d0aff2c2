package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func feedTrend(tc *TrendCapability, start, step float64, n int) {
	rate := start
	for i := 0; i < n; i++ {
		tc.Update(rate)
		rate += step
	}
}

func TestTrendNotReadyIsSideways(t *testing.T) {
	tc := NewTrendCapability(3, 9, 0.001)
	feedTrend(tc, 100, 1, 5)

	require.False(t, tc.Ready())
	require.Equal(t, TrendSideways, tc.Trend())
}

func TestTrendClassifiesDirection(t *testing.T) {
	up := NewTrendCapability(3, 9, 0.001)
	feedTrend(up, 100, 2, 9)
	require.True(t, up.Ready())
	require.Equal(t, TrendUp, up.Trend())

	down := NewTrendCapability(3, 9, 0.001)
	feedTrend(down, 100, -2, 9)
	require.Equal(t, TrendDown, down.Trend())

	flat := NewTrendCapability(3, 9, 0.001)
	feedTrend(flat, 100, 0, 9)
	require.Equal(t, TrendSideways, flat.Trend())
}

func TestTrendWindowSlides(t *testing.T) {
	tc := NewTrendCapability(3, 9, 0.001)
	feedTrend(tc, 100, 2, 9)
	require.Equal(t, TrendUp, tc.Trend())

	// Long enough in the other direction flips the classification.
	feedTrend(tc, 118, -2, 9)
	require.Equal(t, TrendDown, tc.Trend())
}

func TestTurnSchedulerLimitsFlips(t *testing.T) {
	ts := NewTurnScheduler(time.Hour)
	require.True(t, ts.CanTurn())

	ts.MarkTurn()
	require.False(t, ts.CanTurn())
}

func TestEMACrossTrendFilterBlocksCounterTrendOpen(t *testing.T) {
	s, err := New(InstanceConfig{
		Class: "ema_cross",
		Pair:  "USD_BTC",
		Params: map[string]any{
			"trendFilter":    true,
			"trendFast":      3,
			"trendSlow":      9,
			"trendThreshold": 0.001,
		},
	})
	require.NoError(t, err)

	cross := s.(*EMACross)
	feedTrend(cross.trend, 100, -2, 9)
	require.True(t, cross.againstTrend(TrendDown))
	require.False(t, cross.againstTrend(TrendUp))
}
