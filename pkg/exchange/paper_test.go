package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func paperWithRate(t *testing.T, rate float64) *PaperGateway {
	t.Helper()
	gw := NewPaperGateway(PaperConfig{Label: "paper"})
	gw.SetRate("USD_BTC", rate)
	return gw
}

func TestMarketOrderFillsAtCurrentRate(t *testing.T) {
	gw := paperWithRate(t, 100)
	gw.Deposit("USD", 1000)

	res, err := gw.SubmitOrder(context.Background(), OrderRequest{
		Pair:   "USD_BTC",
		Side:   SideBuy,
		Type:   OrderTypeMarket,
		Amount: 2,
	})
	require.NoError(t, err)
	require.Equal(t, StatusFilled, res.Status)
	require.Equal(t, 2.0, res.FilledAmount)
	require.Equal(t, 100.0, res.FilledRate) // zero slippage configured
	require.Len(t, res.Fills, 1)
}

func TestSpotFillMovesBothLegs(t *testing.T) {
	gw := NewPaperGateway(PaperConfig{Label: "paper", FeeRate: 0.001})
	gw.SetRate("USD_BTC", 100)
	gw.Deposit("USD", 1000)

	res, err := gw.SubmitOrder(context.Background(), OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeMarket, Amount: 2,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.2, res.Fee, 1e-9) // 200 notional at 10 bps

	balances, err := gw.GetBalances(context.Background())
	require.NoError(t, err)
	byCur := make(map[string]float64)
	for _, b := range balances {
		byCur[b.Currency] = b.Available
	}
	require.InDelta(t, 2.0, byCur["BTC"], 1e-9)
	require.InDelta(t, 1000-200-0.2, byCur["USD"], 1e-9)
}

func TestSpotRejectsInsufficientBalance(t *testing.T) {
	gw := paperWithRate(t, 100)
	gw.Deposit("USD", 50)

	_, err := gw.SubmitOrder(context.Background(), OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeMarket, Amount: 1,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient")
}

func TestMarginPositionAveragesAndFlips(t *testing.T) {
	gw := paperWithRate(t, 100)
	ctx := context.Background()

	_, err := gw.SubmitOrder(ctx, OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeMarket, Amount: 2, MarginMode: true, Leverage: 3,
	})
	require.NoError(t, err)

	gw.SetRate("USD_BTC", 200)
	_, err = gw.SubmitOrder(ctx, OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeMarket, Amount: 2, MarginMode: true, Leverage: 3,
	})
	require.NoError(t, err)

	positions, err := gw.GetMarginPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, 4.0, positions[0].Amount)
	require.InDelta(t, 150.0, positions[0].EntryPrice, 1e-9)

	// Selling more than held flips long 4 into short 2; the short's entry is
	// this fill's rate, not the old long's average.
	_, err = gw.SubmitOrder(ctx, OrderRequest{
		Pair: "USD_BTC", Side: SideSell, Type: OrderTypeMarket, Amount: 6, MarginMode: true,
	})
	require.NoError(t, err)

	positions, err = gw.GetMarginPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, -2.0, positions[0].Amount)
	require.InDelta(t, 200.0, positions[0].EntryPrice, 1e-9)

	// Buying it back: position disappears like on a real venue.
	_, err = gw.SubmitOrder(ctx, OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeMarket, Amount: 2, MarginMode: true,
	})
	require.NoError(t, err)

	positions, err = gw.GetMarginPositions(ctx)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestNonCrossingLimitOrderRests(t *testing.T) {
	gw := paperWithRate(t, 100)
	gw.Deposit("USD", 1000)

	res, err := gw.SubmitOrder(context.Background(), OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeLimit, Rate: 90, Amount: 1,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, res.Status)
	require.Equal(t, 1, gw.OpenOrderCount())

	require.NoError(t, gw.CancelOrder(context.Background(), "USD_BTC", res.ExchangeOrderID))
	require.Equal(t, 0, gw.OpenOrderCount())
}

func TestCrossingLimitOrderFillsImmediately(t *testing.T) {
	gw := paperWithRate(t, 100)
	gw.Deposit("USD", 1000)

	res, err := gw.SubmitOrder(context.Background(), OrderRequest{
		Pair: "USD_BTC", Side: SideBuy, Type: OrderTypeLimit, Rate: 105, Amount: 1,
	})
	require.NoError(t, err)
	require.Equal(t, StatusFilled, res.Status)
}

func TestNoRateNoFill(t *testing.T) {
	gw := NewPaperGateway(PaperConfig{Label: "paper"})

	_, err := gw.SubmitOrder(context.Background(), OrderRequest{
		Pair: "USD_ETH", Side: SideBuy, Type: OrderTypeMarket, Amount: 1,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no market rate")
}
