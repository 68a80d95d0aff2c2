package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"advisor-core/internal/portfolio"
	"advisor-core/internal/strategy"
	"advisor-core/pkg/exchange"
)

func TestSyncOverwritesLocalView(t *testing.T) {
	gw := &fakeGateway{
		label:     "test",
		balances:  []exchange.Balance{{Currency: "USD", Available: 750}},
		positions: []exchange.MarginPositionInfo{{Pair: "USD_BTC", Amount: 2, EntryPrice: 110, Leverage: 3}},
	}
	store := portfolio.NewStore()
	group := strategy.NewGroup(1, "USD_BTC")
	member := newStub("ema_cross", strategy.BaseConfig{})
	group.Add(member)

	// Locally tracked state drifted from what the venue reports.
	store.RecordFill("test", "USD_BTC", 90, 5, 3)

	r := NewResyncer(store, map[string]exchange.Gateway{"test": gw},
		[]SyncTarget{{Group: group, Exchanges: []string{"test"}}},
		nil, nil, nil, time.Minute)
	r.SyncOnce(context.Background())

	usd, _ := store.Balance("test", "USD").Float64()
	require.InDelta(t, 750.0, usd, 1e-9)

	pos := store.Position("test", "USD_BTC")
	require.InDelta(t, 2.0, pos.Amount, 1e-9)
	require.InDelta(t, 110.0, pos.EntryPrice, 1e-9)

	require.InDelta(t, 2.0, member.HoldingCoins(), 1e-9)
	require.Equal(t, portfolio.PositionLong, member.Position())
	require.InDelta(t, 110.0, member.EntryPrice(), 1e-9)
}

func TestSyncReachesOnlyGroupsOnThatExchange(t *testing.T) {
	alpha := &fakeGateway{
		label:     "alpha",
		positions: []exchange.MarginPositionInfo{{Pair: "USD_BTC", Amount: 2, EntryPrice: 100, Leverage: 1}},
	}
	beta := &fakeGateway{label: "beta"} // nothing open there

	store := portfolio.NewStore()
	groupA := strategy.NewGroup(1, "USD_BTC")
	onAlpha := newStub("ema_cross", strategy.BaseConfig{})
	groupA.Add(onAlpha)
	groupB := strategy.NewGroup(2, "USD_BTC")
	onBeta := newStub("rsi", strategy.BaseConfig{})
	groupB.Add(onBeta)

	r := NewResyncer(store, map[string]exchange.Gateway{"alpha": alpha, "beta": beta},
		[]SyncTarget{
			{Group: groupA, Exchanges: []string{"alpha"}},
			{Group: groupB, Exchanges: []string{"beta"}},
		}, nil, nil, nil, time.Minute)

	require.NoError(t, r.syncExchange(context.Background(), "alpha", alpha))
	require.Equal(t, portfolio.PositionLong, onAlpha.Position())
	require.Equal(t, portfolio.PositionNone, onBeta.Position())

	// Beta's empty report must not zero the state of a group trading alpha.
	require.NoError(t, r.syncExchange(context.Background(), "beta", beta))
	require.InDelta(t, 2.0, onAlpha.HoldingCoins(), 1e-9)
	require.Equal(t, portfolio.PositionLong, onAlpha.Position())
	require.Equal(t, portfolio.PositionNone, onBeta.Position())
}
