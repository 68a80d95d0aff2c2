package strategy

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"advisor-core/internal/market"
	"advisor-core/internal/portfolio"
	"advisor-core/pkg/exchange"
)

// Action is what a strategy wants to happen.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
	ActionHold  Action = "hold"
)

// MaxWeight is the sentinel weight for signals that must execute
// immediately, bypassing tick aggregation (stops, forced closes).
const MaxWeight = math.MaxFloat64

// AllExchanges targets every configured exchange for the pair.
const AllExchanges = "all"

// ScheduledTrade is a weighted signal emitted by a strategy. It is consumed
// exactly once by the aggregator and never persisted.
type ScheduledTrade struct {
	Action   Action
	Weight   float64
	Reason   string
	Strategy string // emitting strategy class name
	Exchange string // target exchange label or AllExchanges
	Created  time.Time

	// Optional read-only accessors bound by the originating strategy when a
	// signal is delegated to a trade-execution strategy. Nil means "use
	// market defaults".
	RateSource   func() float64
	AmountSource func() float64
}

// Immediate reports whether this signal carries the force-execute sentinel.
func (t ScheduledTrade) Immediate() bool { return t.Weight == MaxWeight }

// TradeInfo is metadata attached to a confirmed trade.
type TradeInfo struct {
	Strategy string
	Reason   string
	Exchange string
}

// TradeConfirmation is fanned out to every strategy instance sharing the
// same config number + pair once an order is confirmed.
type TradeConfirmation struct {
	Action Action
	Pair   string
	Rate   float64
	Amount float64 // unsigned fill magnitude
	Fills  []exchange.Fill
	Info   TradeInfo
}

// Emitter receives signals from strategies. Implemented by the aggregator.
type Emitter interface {
	Emit(pair string, trade ScheduledTrade)
}

// TickCounter tracks the strategies still expected to report for the
// current tick window. Implemented by the aggregator.
type TickCounter interface {
	StartTick(pair string)
	DoneTick(pair string)
	StartCandleTick(pair string, size time.Duration)
	DoneCandleTick(pair string, size time.Duration)
}

// Strategy is the fixed contract every signal producer implements. Concrete
// strategies embed *Base for bookkeeping and implement the two tick hooks.
type Strategy interface {
	Name() string
	Pair() string
	CandleSize() time.Duration // 0 when the strategy ignores candles
	IsMain() bool
	CanOpenOpposite() bool
	IsStopOrTake() bool
	Disabled() bool

	// Decision logic. Invoked inside the runner's start/done tick bracket;
	// signal emission is only valid from within these hooks (or a forced
	// context such as a resync-triggered close).
	OnTrades(trades []market.Trade)
	OnCandle(candle market.Candle)

	// Feedback from the trader.
	OnTradeConfirmation(conf TradeConfirmation)
	OnSyncPortfolio(coins map[string]decimal.Decimal, pos portfolio.MarginPosition, exchangeLabel string)

	// State snapshot for restarts.
	Serialize() ([]byte, error)
	Restore(data []byte) error
}
