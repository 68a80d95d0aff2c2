package trader

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"advisor-core/internal/market"
	"advisor-core/internal/portfolio"
	"advisor-core/internal/strategy"
	"advisor-core/pkg/exchange"
)

type fakeGateway struct {
	label     string
	rate      float64
	submitted []exchange.OrderRequest
	submitErr error
	balances  []exchange.Balance
	positions []exchange.MarginPositionInfo
}

func (g *fakeGateway) Label() string { return g.label }

func (g *fakeGateway) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if g.submitErr != nil {
		return exchange.OrderResult{}, g.submitErr
	}
	g.submitted = append(g.submitted, req)
	return exchange.OrderResult{
		ExchangeOrderID: "1",
		ClientID:        req.ClientID,
		Status:          exchange.StatusFilled,
		FilledRate:      g.rate,
		FilledAmount:    req.Amount,
	}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, pair, id string) error { return nil }

func (g *fakeGateway) GetOrderBook(ctx context.Context, pair string) (exchange.OrderBook, error) {
	return exchange.OrderBook{Pair: pair}, nil
}

func (g *fakeGateway) GetTicker(ctx context.Context, pair string) (exchange.Ticker, error) {
	return exchange.Ticker{Pair: pair, Last: g.rate}, nil
}

func (g *fakeGateway) GetMaxLeverage(pair string) float64 { return 10 }

func (g *fakeGateway) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	return g.balances, nil
}

func (g *fakeGateway) GetMarginPositions(ctx context.Context) ([]exchange.MarginPositionInfo, error) {
	return g.positions, nil
}

type stubStrategy struct {
	*strategy.Base
	confirmations []strategy.TradeConfirmation
}

func (s *stubStrategy) OnTrades(trades []market.Trade) {}
func (s *stubStrategy) OnCandle(candle market.Candle)  {}

func (s *stubStrategy) OnTradeConfirmation(conf strategy.TradeConfirmation) {
	s.confirmations = append(s.confirmations, conf)
	s.Base.OnTradeConfirmation(conf)
}

func newStub(name string, cfg strategy.BaseConfig) *stubStrategy {
	cfg.Name = name
	if cfg.Pair == "" {
		cfg.Pair = "USD_BTC"
	}
	return &stubStrategy{Base: strategy.NewBase(cfg)}
}

func setup(cfg Config, gw *fakeGateway, members ...strategy.Strategy) (*Trader, *portfolio.Store, *strategy.Group) {
	store := portfolio.NewStore()
	group := strategy.NewGroup(1, "USD_BTC")
	for _, m := range members {
		group.Add(m)
	}
	tr := New(cfg, map[string]exchange.Gateway{gw.label: gw}, store, group, nil, nil, nil, nil)
	return tr, store, group
}

func dispatch(action strategy.Action, name string) strategy.ScheduledTrade {
	return strategy.ScheduledTrade{Action: action, Weight: 100, Strategy: name, Exchange: "test"}
}

func TestOpenSizedFromBudgetAndLeverage(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, _, _ := setup(Config{MarginTrading: true, TradeTotalBase: 500, Leverage: 4}, gw, emitter)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionBuy, "ema_cross")))

	require.Len(t, gw.submitted, 1)
	req := gw.submitted[0]
	require.Equal(t, exchange.SideBuy, req.Side)
	// 500 quote * 4x leverage at rate 100 buys 20 coins.
	require.InDelta(t, 20.0, req.Amount, 1e-9)
	require.Equal(t, 4.0, req.Leverage)
}

func TestOppositeOpenSkippedWhilePositionHeld(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("rsi", strategy.BaseConfig{})
	tr, store, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1}, gw, emitter)

	store.RecordFill("test", "USD_BTC", 100, 2, 1) // long 2

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionSell, "rsi")))
	require.Empty(t, gw.submitted)
}

func TestStopStrategyMayTradeAgainstPosition(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	stop := newStub("stop_loss", strategy.BaseConfig{StopOrTake: true})
	tr, store, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1}, gw, stop)

	store.RecordFill("test", "USD_BTC", 100, 2, 1)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionSell, "stop_loss")))
	require.Len(t, gw.submitted, 1)
}

func TestCloseClampedToPartialPercent(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, store, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1, MaxClosePartialPercent: 50}, gw, emitter)

	store.RecordFill("test", "USD_BTC", 100, 10, 1)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionClose, "ema_cross")))

	require.Len(t, gw.submitted, 1)
	req := gw.submitted[0]
	require.Equal(t, exchange.SideSell, req.Side)
	require.InDelta(t, 5.0, req.Amount, 1e-9)
	require.True(t, req.ReduceOnly)
}

func TestCloseWithoutPositionSkipped(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, _, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1}, gw, emitter)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionClose, "ema_cross")))
	require.Empty(t, gw.submitted)
}

func TestFlipFoldsCloseIntoOpen(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, store, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1, FlipPosition: true}, gw, emitter)

	store.RecordFill("test", "USD_BTC", 100, 2, 1) // long 2

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionSell, "ema_cross")))

	require.Len(t, gw.submitted, 1)
	// 1 coin for the new short plus 2 to unwind the long.
	require.InDelta(t, 3.0, gw.submitted[0].Amount, 1e-9)
}

func TestConfirmationFannedOutToWholeGroup(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	follower := newStub("stop_loss", strategy.BaseConfig{StopOrTake: true})
	tr, _, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1}, gw, emitter, follower)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionBuy, "ema_cross")))

	require.Len(t, emitter.confirmations, 1)
	require.Len(t, follower.confirmations, 1)
	require.Equal(t, emitter.Position(), follower.Position())
	require.Equal(t, portfolio.PositionLong, follower.Position())
}

func TestSpotFillMovesBalances(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, store, _ := setup(Config{TradeTotalBase: 200}, gw, emitter)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionBuy, "ema_cross")))

	btc, _ := store.Balance("test", "BTC").Float64()
	require.InDelta(t, 2.0, btc, 1e-9)
}

func TestGatewayErrorDoesNotPropagate(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100, submitErr: errors.New("venue down")}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, store, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1}, gw, emitter)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionBuy, "ema_cross")))
	require.Empty(t, emitter.confirmations)
	require.False(t, store.Position("test", "USD_BTC").IsOpen())
}

func TestArbitrageLegsSizedFromOwnBalance(t *testing.T) {
	gwA := &fakeGateway{label: "alpha", rate: 100}
	gwB := &fakeGateway{label: "beta", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	store := portfolio.NewStore()
	group := strategy.NewGroup(1, "USD_BTC")
	group.Add(emitter)
	tr := New(Config{Arbitrage: true, MaxTradeBalancePercent: 50},
		map[string]exchange.Gateway{"alpha": gwA, "beta": gwB},
		store, group, nil, nil, nil, nil)

	store.AddBalance("alpha", "USD", decimal.NewFromInt(1000))
	store.AddBalance("beta", "USD", decimal.NewFromInt(400))

	trade := strategy.ScheduledTrade{
		Action:   strategy.ActionBuy,
		Weight:   100,
		Strategy: "ema_cross",
		Exchange: strategy.AllExchanges,
	}
	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", trade))

	require.Len(t, gwA.submitted, 1)
	require.Len(t, gwB.submitted, 1)
	// Each leg spends half of its own quote balance at rate 100.
	require.InDelta(t, 5.0, gwA.submitted[0].Amount, 1e-9)
	require.InDelta(t, 2.0, gwB.submitted[0].Amount, 1e-9)
}

func TestTradeDirectionRestriction(t *testing.T) {
	gw := &fakeGateway{label: "test", rate: 100}
	emitter := newStub("ema_cross", strategy.BaseConfig{})
	tr, _, _ := setup(Config{MarginTrading: true, TradeTotalBase: 100, Leverage: 1, TradeDirection: "up"}, gw, emitter)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionSell, "ema_cross")))
	require.Empty(t, gw.submitted)

	require.NoError(t, tr.CallAction(context.Background(), "USD_BTC", dispatch(strategy.ActionBuy, "ema_cross")))
	require.Len(t, gw.submitted, 1)
}
