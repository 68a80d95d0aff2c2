package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"advisor-core/internal/portfolio"
)

// Group holds every strategy instance tracking the same currency pair under
// one config entry. It resolves the main strategy and is the fan-out target
// for trade confirmations and portfolio syncs.
type Group struct {
	ConfigNr   int
	Pair       string
	strategies []Strategy
}

// NewGroup creates an empty group for a (config nr, pair).
func NewGroup(configNr int, pair string) *Group {
	return &Group{ConfigNr: configNr, Pair: pair}
}

// Add registers a strategy instance.
func (g *Group) Add(s Strategy) {
	g.strategies = append(g.strategies, s)
}

// All returns the registered strategies in registration order.
func (g *Group) All() []Strategy {
	return g.strategies
}

// ByName finds a strategy by class name, or nil.
func (g *Group) ByName(name string) Strategy {
	for _, s := range g.strategies {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Main resolves the main strategy: the one flagged main, falling back to the
// first registered instance. Exactly one main strategy drives position
// ownership for non-delegating flows.
func (g *Group) Main() Strategy {
	for _, s := range g.strategies {
		if s.IsMain() {
			return s
		}
	}
	if len(g.strategies) > 0 {
		return g.strategies[0]
	}
	return nil
}

// CountForCandleSize reports how many strategies participate in a given
// candle-size wait group.
func (g *Group) CountForCandleSize(size time.Duration) int {
	n := 0
	for _, s := range g.strategies {
		if s.CandleSize() == size {
			n++
		}
	}
	return n
}

// NotifyTrade fans a confirmation out to every member. Secondary strategies
// (stop-loss, take-profit) stay synchronized even when they did not trigger
// the trade.
func (g *Group) NotifyTrade(conf TradeConfirmation) {
	for _, s := range g.strategies {
		s.OnTradeConfirmation(conf)
	}
}

// NotifySync fans an authoritative portfolio report out to every member.
func (g *Group) NotifySync(coins map[string]decimal.Decimal, pos portfolio.MarginPosition, exchangeLabel string) {
	for _, s := range g.strategies {
		s.OnSyncPortfolio(coins, pos, exchangeLabel)
	}
}
