package exchange

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the basic order types the core submits.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus normalizes venue status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusOpen     OrderStatus = "OPEN"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
)

// OrderRequest captures an order intent to be sent to a venue.
type OrderRequest struct {
	Pair       string
	Side       Side
	Type       OrderType
	Rate       float64 // required for LIMIT
	Amount     float64
	Leverage   float64 // 0 for spot
	MarginMode bool
	ClientID   string
	ReduceOnly bool
}

// OrderResult is the venue acknowledgement.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Status          OrderStatus
	FilledRate      float64
	FilledAmount    float64
	Fee             float64
	Fills           []Fill
}

// Fill is a single execution against an order.
type Fill struct {
	TradeID string
	Rate    float64
	Amount  float64
	Time    time.Time
}

// OrderBookEntry is one price level.
type OrderBookEntry struct {
	Rate   float64
	Amount float64
}

// OrderBook is a shallow book snapshot.
type OrderBook struct {
	Pair string
	Bids []OrderBookEntry
	Asks []OrderBookEntry
}

// Ticker is the latest market summary for a pair.
type Ticker struct {
	Pair string
	Last float64
	Bid  float64
	Ask  float64
	Time time.Time
}

// Balance is a single-currency spot balance report.
type Balance struct {
	Currency  string
	Available float64
}

// MarginPositionInfo is the venue-reported view of a margin position.
// Amount is signed: positive long, negative short.
type MarginPositionInfo struct {
	Pair       string
	Amount     float64
	EntryPrice float64
	Leverage   float64
	ProfitLoss float64
}
