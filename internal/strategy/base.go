package strategy

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"advisor-core/internal/market"
	"advisor-core/internal/portfolio"
)

// BaseConfig carries the per-instance settings shared by all strategies.
type BaseConfig struct {
	Name            string
	Pair            string
	Exchange        string // target exchange label, AllExchanges by default
	CandleSize      time.Duration
	Main            bool
	TradeOnce       bool // suppress repeated signals in the same direction
	FallbackOnly    bool // only allowed to signal while no position is open
	CanOpenOpposite bool
	StopOrTake      bool // marks stop-loss / take-profit strategies
	DefaultWeight   float64
}

// Base implements the bookkeeping half of the Strategy contract. Concrete
// strategies embed *Base and provide OnTrades/OnCandle.
type Base struct {
	cfg     BaseConfig
	emitter Emitter

	mu              sync.Mutex
	position        portfolio.PositionType
	holdingCoins    float64 // signed magnitude
	entryPrice      float64
	avgMarketPrice  float64
	lastTrade       Action
	done            bool
	disabled        bool
	closedPositions bool

	delegate     *Base
	rateSource   func() float64
	amountSource func() float64
}

// baseState is the serialized snapshot of a Base.
type baseState struct {
	Position        portfolio.PositionType `json:"position"`
	HoldingCoins    float64                `json:"holdingCoins"`
	EntryPrice      float64                `json:"entryPrice"`
	LastTrade       Action                 `json:"lastTrade"`
	Done            bool                   `json:"done"`
	ClosedPositions bool                   `json:"closedPositions"`
}

// NewBase creates the shared strategy core.
func NewBase(cfg BaseConfig) *Base {
	if cfg.Exchange == "" {
		cfg.Exchange = AllExchanges
	}
	if cfg.DefaultWeight == 0 {
		cfg.DefaultWeight = 100
	}
	return &Base{cfg: cfg, position: portfolio.PositionNone, lastTrade: ActionHold}
}

func (b *Base) Name() string              { return b.cfg.Name }
func (b *Base) Pair() string              { return b.cfg.Pair }
func (b *Base) CandleSize() time.Duration { return b.cfg.CandleSize }
func (b *Base) IsMain() bool              { return b.cfg.Main }
func (b *Base) CanOpenOpposite() bool     { return b.cfg.CanOpenOpposite }
func (b *Base) IsStopOrTake() bool        { return b.cfg.StopOrTake }
func (b *Base) DefaultWeight() float64    { return b.cfg.DefaultWeight }

func (b *Base) Disabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disabled
}

// Disable turns the strategy off; it keeps ticking but emits nothing.
func (b *Base) Disable(disabled bool) {
	b.mu.Lock()
	b.disabled = disabled
	b.mu.Unlock()
}

// SetEmitter binds the aggregator. Done once at wiring time.
func (b *Base) SetEmitter(e Emitter) { b.emitter = e }

// core gives same-package wiring helpers access to the embedded Base.
func (b *Base) core() *Base { return b }

// SetDelegate routes this strategy's signals through a trade-execution
// strategy. Weight, reason and exchange are preserved; the delegate gains
// read-only rate/amount accessors bound to this strategy.
func (b *Base) SetDelegate(target *Base) { b.delegate = target }

// SetRateSource installs a rate-override accessor offered to delegates.
func (b *Base) SetRateSource(f func() float64) { b.rateSource = f }

// SetAmountSource installs an amount-override accessor offered to delegates.
func (b *Base) SetAmountSource(f func() float64) { b.amountSource = f }

// Position returns the locally tracked direction.
func (b *Base) Position() portfolio.PositionType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// HoldingCoins returns the locally tracked signed holding.
func (b *Base) HoldingCoins() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdingCoins
}

// EntryPrice returns the locally tracked entry price.
func (b *Base) EntryPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entryPrice
}

// AvgMarketPrice returns the latest volume-weighted market rate.
func (b *Base) AvgMarketPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.avgMarketPrice
}

// LastTrade returns the last confirmed action.
func (b *Base) LastTrade() Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTrade
}

// UpdateMarketPrice folds a trade batch into the tracked market rate.
// The runner calls this before invoking decision logic.
func (b *Base) UpdateMarketPrice(trades []market.Trade) {
	if rate := market.VWAP(trades); rate > 0 {
		b.mu.Lock()
		b.avgMarketPrice = rate
		b.mu.Unlock()
	}
}

// UpdateMarketRate sets the tracked market rate from a candle close.
func (b *Base) UpdateMarketRate(rate float64) {
	if rate > 0 {
		b.mu.Lock()
		b.avgMarketPrice = rate
		b.mu.Unlock()
	}
}

// EmitBuy signals a buy with the given weight.
func (b *Base) EmitBuy(weight float64, reason string) { b.emit(ActionBuy, weight, reason) }

// EmitSell signals a sell with the given weight.
func (b *Base) EmitSell(weight float64, reason string) { b.emit(ActionSell, weight, reason) }

// EmitClose signals closing the current position.
func (b *Base) EmitClose(weight float64, reason string) { b.emit(ActionClose, weight, reason) }

// emit applies the gating rules and hands the signal to the aggregator
// (directly or through a delegate).
func (b *Base) emit(action Action, weight float64, reason string) {
	b.mu.Lock()
	if b.disabled {
		b.mu.Unlock()
		return
	}
	if b.done {
		logrus.Debugf("%s %s: already done, suppressing %s", b.cfg.Name, b.cfg.Pair, action)
		b.mu.Unlock()
		return
	}
	if b.cfg.FallbackOnly && b.position != portfolio.PositionNone && action != ActionClose {
		logrus.Debugf("%s %s: fallback strategy with open position, suppressing %s", b.cfg.Name, b.cfg.Pair, action)
		b.mu.Unlock()
		return
	}
	if b.cfg.TradeOnce && b.lastTrade == action {
		logrus.Debugf("%s %s: trade-once mode, already traded %s", b.cfg.Name, b.cfg.Pair, action)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	trade := ScheduledTrade{
		Action:       action,
		Weight:       weight,
		Reason:       reason,
		Strategy:     b.cfg.Name,
		Exchange:     b.cfg.Exchange,
		Created:      time.Now(),
		RateSource:   b.rateSource,
		AmountSource: b.amountSource,
	}

	if b.delegate != nil {
		b.delegate.emitDirect(trade)
		return
	}
	b.emitDirect(trade)
}

// emitDirect bypasses gating. Used for delegated signals and forced closes.
func (b *Base) emitDirect(trade ScheduledTrade) {
	if b.emitter == nil {
		logrus.Errorf("%s %s: no emitter bound, dropping %s signal", b.cfg.Name, b.cfg.Pair, trade.Action)
		return
	}
	b.emitter.Emit(b.cfg.Pair, trade)
}

// OnTradeConfirmation updates local position tracking from a confirmed
// order. Buy adds to the signed holding, sell subtracts, close moves the
// holding toward zero.
func (b *Base) OnTradeConfirmation(conf TradeConfirmation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.holdingCoins
	switch conf.Action {
	case ActionBuy:
		b.holdingCoins += conf.Amount
	case ActionSell:
		b.holdingCoins -= conf.Amount
	case ActionClose:
		switch {
		case prev > 0:
			b.holdingCoins -= conf.Amount
			if b.holdingCoins < 0 {
				b.holdingCoins = 0
			}
		case prev < 0:
			b.holdingCoins += conf.Amount
			if b.holdingCoins > 0 {
				b.holdingCoins = 0
			}
		}
	}

	switch {
	case b.holdingCoins == 0:
		b.entryPrice = 0
	case prev == 0 || (prev > 0) != (b.holdingCoins > 0):
		b.entryPrice = conf.Rate
	case abs(b.holdingCoins) > abs(prev):
		b.entryPrice = (b.entryPrice*abs(prev) + conf.Rate*conf.Amount) / abs(b.holdingCoins)
	}

	b.position = portfolio.TypeFromAmount(b.holdingCoins)
	b.lastTrade = conf.Action
	b.closedPositions = conf.Action == ActionClose && b.holdingCoins == 0
	if b.cfg.TradeOnce && conf.Action != ActionClose {
		b.done = true
	}
}

// OnSyncPortfolio reconciles local tracking with exchange truth. The resync
// report always wins over local state. A strategy that believed it closed
// but is still reported open re-emits a forced close.
func (b *Base) OnSyncPortfolio(coins map[string]decimal.Decimal, pos portfolio.MarginPosition, exchangeLabel string) {
	b.mu.Lock()
	reclose := b.closedPositions && pos.IsOpen()
	b.holdingCoins = pos.Amount
	if pos.IsOpen() {
		b.entryPrice = pos.EntryPrice
	} else {
		b.entryPrice = 0
	}
	b.position = pos.Type
	if reclose {
		b.closedPositions = false
	}
	b.mu.Unlock()

	if reclose {
		logrus.Warnf("%s %s: position still open on %s after close, forcing close again", b.cfg.Name, b.cfg.Pair, exchangeLabel)
		b.emitDirect(ScheduledTrade{
			Action:   ActionClose,
			Weight:   MaxWeight,
			Reason:   "position still open after close (resync)",
			Strategy: b.cfg.Name,
			Exchange: exchangeLabel,
			Created:  time.Now(),
		})
	}
}

// Serialize snapshots the base state as JSON.
func (b *Base) Serialize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return json.Marshal(baseState{
		Position:        b.position,
		HoldingCoins:    b.holdingCoins,
		EntryPrice:      b.entryPrice,
		LastTrade:       b.lastTrade,
		Done:            b.done,
		ClosedPositions: b.closedPositions,
	})
}

// Restore loads a snapshot previously produced by Serialize.
func (b *Base) Restore(data []byte) error {
	var s baseState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = s.Position
	b.holdingCoins = s.HoldingCoins
	b.entryPrice = s.EntryPrice
	b.lastTrade = s.LastTrade
	b.done = s.Done
	b.closedPositions = s.ClosedPositions
	if b.position == "" {
		b.position = portfolio.TypeFromAmount(b.holdingCoins)
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
