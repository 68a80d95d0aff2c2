package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"advisor-core/internal/events"
	"advisor-core/internal/notify"
	"advisor-core/internal/portfolio"
	"advisor-core/internal/strategy"
	"advisor-core/pkg/db"
	"advisor-core/pkg/exchange"
)

// Config carries the execution settings of one strategy group.
type Config struct {
	ConfigNr               int
	MarginTrading          bool
	TradeTotalBase         float64 // order size in quote currency
	Leverage               float64
	FlipPosition           bool    // close + reopen opposite in a single order
	MaxClosePartialPercent float64 // cap on how much of a position one close may unwind
	Arbitrage              bool    // size each leg from that exchange's balance
	MaxTradeBalancePercent float64
	TradeDirection         string // "", "up" (long only), "down" (short only)
}

// Trader turns winning signals into orders on one or more exchanges and fans
// the confirmations back to every strategy in the group. Implements the
// aggregator's Executor contract.
type Trader struct {
	cfg      Config
	gateways map[string]exchange.Gateway
	store    *portfolio.Store
	group    *strategy.Group
	database *db.Database
	bus      *events.Bus
	notifier notify.Notifier
	snapshot *portfolio.SnapshotWriter
	open     *OpenOrderTracker

	mu sync.Mutex // serializes order placement for the group
}

// New wires a trader for one strategy group. database, bus, notifier and
// snapshot may be nil in tests.
func New(cfg Config, gateways map[string]exchange.Gateway, store *portfolio.Store,
	group *strategy.Group, database *db.Database, bus *events.Bus,
	notifier notify.Notifier, snapshot *portfolio.SnapshotWriter) *Trader {

	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	if cfg.MaxClosePartialPercent <= 0 || cfg.MaxClosePartialPercent > 100 {
		cfg.MaxClosePartialPercent = 100
	}
	return &Trader{
		cfg:      cfg,
		gateways: gateways,
		store:    store,
		group:    group,
		database: database,
		bus:      bus,
		notifier: notifier,
		snapshot: snapshot,
		open:     NewOpenOrderTracker(gateways, database, bus),
	}
}

// OpenOrders exposes the tracker for the stale-order sweep loop.
func (t *Trader) OpenOrders() *OpenOrderTracker { return t.open }

// CallAction executes a dispatched signal. One failing exchange leg never
// blocks the others; exchange errors are logged and alerted, not returned to
// the scheduling layer.
func (t *Trader) CallAction(ctx context.Context, pair string, trade strategy.ScheduledTrade) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if trade.Action == strategy.ActionHold {
		return nil
	}

	for _, gw := range t.targets(trade.Exchange) {
		if err := t.executeOn(ctx, gw, pair, trade); err != nil {
			logrus.Errorf("❌ %s %s: %s failed: %v", gw.Label(), pair, trade.Action, err)
			t.alert(ctx, gw.Label(), "api_error", fmt.Sprintf("%s %s: %v", pair, trade.Action, err))
			t.publish(events.EventOrderRejected, pair)
		}
	}
	return nil
}

// targets resolves the gateways a signal applies to.
func (t *Trader) targets(label string) []exchange.Gateway {
	if label == "" || label == strategy.AllExchanges {
		out := make([]exchange.Gateway, 0, len(t.gateways))
		for _, gw := range t.gateways {
			out = append(out, gw)
		}
		return out
	}
	if gw, ok := t.gateways[label]; ok {
		return []exchange.Gateway{gw}
	}
	logrus.Warnf("⚠️ signal targets unknown exchange %q, dropping", label)
	return nil
}

func (t *Trader) executeOn(ctx context.Context, gw exchange.Gateway, pair string, trade strategy.ScheduledTrade) error {
	pos := t.store.Position(gw.Label(), pair)

	if skip, why := t.skipTrade(trade, pos); skip {
		logrus.Infof("⏭️ %s %s: skipping %s from %s: %s", gw.Label(), pair, trade.Action, trade.Strategy, why)
		t.publish(events.EventTradeSkipped, pair)
		return nil
	}

	rate, err := t.resolveRate(ctx, gw, pair, trade)
	if err != nil {
		return err
	}

	side, amount, reduceOnly := t.sizeOrder(gw, pair, trade, pos, rate)
	if amount <= 0 {
		logrus.Infof("⏭️ %s %s: %s from %s sizes to zero, skipping", gw.Label(), pair, trade.Action, trade.Strategy)
		t.publish(events.EventTradeSkipped, pair)
		return nil
	}

	leverage := 0.0
	if t.cfg.MarginTrading {
		leverage = t.cfg.Leverage
		if max := gw.GetMaxLeverage(pair); max > 0 && leverage > max {
			leverage = max
		}
	}

	req := exchange.OrderRequest{
		Pair:       pair,
		Side:       side,
		Type:       exchange.OrderTypeMarket,
		Amount:     amount,
		Leverage:   leverage,
		MarginMode: t.cfg.MarginTrading,
		ClientID:   uuid.NewString(),
		ReduceOnly: reduceOnly,
	}

	t.recordOrder(ctx, gw.Label(), pair, trade, req, string(exchange.StatusNew))

	result, err := gw.SubmitOrder(ctx, req)
	if err != nil {
		t.updateOrder(ctx, req.ClientID, string(exchange.StatusRejected))
		return fmt.Errorf("submit order: %w", err)
	}
	t.publish(events.EventOrderSubmitted, pair)

	switch result.Status {
	case exchange.StatusFilled:
		t.settleFill(ctx, gw.Label(), pair, trade, req, result)
	case exchange.StatusOpen:
		t.open.Track(result.ExchangeOrderID, req.ClientID, gw.Label(), pair)
		t.updateOrder(ctx, req.ClientID, string(exchange.StatusOpen))
	default:
		t.updateOrder(ctx, req.ClientID, string(result.Status))
	}
	return nil
}

// skipTrade applies the double-open guard: while a margin position is open,
// an opening signal in the opposite direction is ignored unless the emitting
// strategy is explicitly allowed to flip (or is a stop/take instance).
func (t *Trader) skipTrade(trade strategy.ScheduledTrade, pos portfolio.MarginPosition) (bool, string) {
	if trade.Action == strategy.ActionClose {
		if !pos.IsOpen() && t.cfg.MarginTrading {
			return true, "no open position to close"
		}
		return false, ""
	}

	switch t.cfg.TradeDirection {
	case "up":
		if trade.Action == strategy.ActionSell {
			return true, "trade direction restricted to long"
		}
	case "down":
		if trade.Action == strategy.ActionBuy {
			return true, "trade direction restricted to short"
		}
	}

	if !t.cfg.MarginTrading || !pos.IsOpen() {
		return false, ""
	}

	opposite := (pos.Type == portfolio.PositionLong && trade.Action == strategy.ActionSell) ||
		(pos.Type == portfolio.PositionShort && trade.Action == strategy.ActionBuy)
	if !opposite {
		return false, ""
	}

	src := t.group.ByName(trade.Strategy)
	if src != nil && (src.CanOpenOpposite() || src.IsStopOrTake()) {
		return false, ""
	}
	if t.cfg.FlipPosition {
		return false, ""
	}
	return true, fmt.Sprintf("%s position open, opposite open not allowed", pos.Type)
}

// resolveRate prefers the signal's bound rate accessor, falling back to the
// venue ticker.
func (t *Trader) resolveRate(ctx context.Context, gw exchange.Gateway, pair string, trade strategy.ScheduledTrade) (float64, error) {
	if trade.RateSource != nil {
		if r := trade.RateSource(); r > 0 {
			return r, nil
		}
	}
	ticker, err := gw.GetTicker(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("get ticker: %w", err)
	}
	if ticker.Last <= 0 {
		return 0, fmt.Errorf("no usable rate for %s", pair)
	}
	return ticker.Last, nil
}

// sizeOrder converts a signal into side + coin amount.
func (t *Trader) sizeOrder(gw exchange.Gateway, pair string, trade strategy.ScheduledTrade,
	pos portfolio.MarginPosition, rate float64) (exchange.Side, float64, bool) {

	if trade.Action == strategy.ActionClose {
		held := abs(pos.Amount)
		if held == 0 {
			// Spot close: sell whatever base currency the store holds.
			base, _ := splitPair(pair)
			held, _ = t.store.Balance(gw.Label(), base).Float64()
		}
		amount := held * t.cfg.MaxClosePartialPercent / 100
		side := exchange.SideSell
		if pos.Type == portfolio.PositionShort {
			side = exchange.SideBuy
		}
		return side, amount, true
	}

	quoteBudget := t.cfg.TradeTotalBase
	if t.cfg.Arbitrage {
		quoteBudget = t.arbitrageBudget(gw.Label(), pair)
	}
	notional := quoteBudget
	if t.cfg.MarginTrading {
		notional *= t.cfg.Leverage
	}
	amount := notional / rate
	if trade.AmountSource != nil {
		if a := trade.AmountSource(); a > 0 {
			amount = a
		}
	}

	side := exchange.SideBuy
	if trade.Action == strategy.ActionSell {
		side = exchange.SideSell
	}

	// Flip mode folds the close of the opposite position into the same order.
	if t.cfg.FlipPosition && t.cfg.MarginTrading && pos.IsOpen() {
		opposite := (pos.Type == portfolio.PositionLong && side == exchange.SideSell) ||
			(pos.Type == portfolio.PositionShort && side == exchange.SideBuy)
		if opposite {
			amount += abs(pos.Amount)
		}
	}
	return side, amount, false
}

// settleFill books a confirmed fill: ledger, persistence, confirmation fanout.
func (t *Trader) settleFill(ctx context.Context, label, pair string,
	trade strategy.ScheduledTrade, req exchange.OrderRequest, result exchange.OrderResult) {

	t.updateOrder(ctx, req.ClientID, string(exchange.StatusFilled))
	t.recordTrade(ctx, label, pair, req, result)

	signed := result.FilledAmount
	if req.Side == exchange.SideSell {
		signed = -signed
	}

	if t.cfg.MarginTrading {
		t.store.RecordFill(label, pair, result.FilledRate, signed, req.Leverage)
	} else {
		base, quote := splitPair(pair)
		t.store.AddBalance(label, base, decimal.NewFromFloat(signed))
		t.store.AddBalance(label, quote,
			decimal.NewFromFloat(-signed*result.FilledRate-result.Fee))
	}

	logrus.Infof("✅ %s %s: %s %s %.8f @ %.8f (%s: %s)",
		label, pair, trade.Action, req.Side, result.FilledAmount, result.FilledRate,
		trade.Strategy, trade.Reason)

	t.group.NotifyTrade(strategy.TradeConfirmation{
		Action: trade.Action,
		Pair:   pair,
		Rate:   result.FilledRate,
		Amount: result.FilledAmount,
		Fills:  result.Fills,
		Info: strategy.TradeInfo{
			Strategy: trade.Strategy,
			Reason:   trade.Reason,
			Exchange: label,
		},
	})

	t.publish(events.EventOrderFilled, pair)
	t.publish(events.EventTradeConfirmed, pair)
	if t.snapshot != nil {
		t.snapshot.Request()
	}
}

func (t *Trader) recordOrder(ctx context.Context, label, pair string,
	trade strategy.ScheduledTrade, req exchange.OrderRequest, status string) {
	if t.database == nil {
		return
	}
	err := t.database.CreateOrder(ctx, db.Order{
		ID:       req.ClientID,
		Exchange: label,
		Pair:     pair,
		Action:   string(trade.Action),
		Side:     string(req.Side),
		Rate:     req.Rate,
		Amount:   req.Amount,
		Status:   status,
		Strategy: trade.Strategy,
		Reason:   trade.Reason,
	})
	if err != nil {
		logrus.Errorf("persisting order %s: %v", req.ClientID, err)
	}
}

func (t *Trader) updateOrder(ctx context.Context, orderID, status string) {
	if t.database == nil {
		return
	}
	if err := t.database.UpdateOrderStatus(ctx, orderID, status); err != nil {
		logrus.Errorf("updating order %s: %v", orderID, err)
	}
}

func (t *Trader) recordTrade(ctx context.Context, label, pair string,
	req exchange.OrderRequest, result exchange.OrderResult) {
	if t.database == nil {
		return
	}
	err := t.database.CreateTrade(ctx, db.Trade{
		ID:       uuid.NewString(),
		OrderID:  req.ClientID,
		Exchange: label,
		Pair:     pair,
		Side:     string(req.Side),
		Rate:     result.FilledRate,
		Amount:   result.FilledAmount,
		Fee:      result.Fee,
	})
	if err != nil {
		logrus.Errorf("persisting trade for order %s: %v", req.ClientID, err)
	}
}

func (t *Trader) publish(e events.Event, payload any) {
	if t.bus != nil {
		t.bus.Publish(e, payload)
	}
}

func (t *Trader) alert(ctx context.Context, label, kind, msg string) {
	if t.notifier == nil {
		return
	}
	_ = t.notifier.Send(ctx, notify.Notification{
		Title:    "trading error",
		Message:  msg,
		Exchange: label,
		Kind:     kind,
	})
}

// splitPair decomposes "USD_BTC" into base BTC and quote USD.
func splitPair(pair string) (base, quote string) {
	parts := strings.SplitN(pair, "_", 2)
	if len(parts) != 2 {
		return pair, ""
	}
	return parts[1], parts[0]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
