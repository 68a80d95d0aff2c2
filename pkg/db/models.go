package db

import "time"

// Order is a submitted order as recorded for audit.
type Order struct {
	ID        string
	Exchange  string
	Pair      string
	Action    string // buy/sell/close that won aggregation
	Side      string // BUY or SELL as sent to the venue
	Rate      float64
	Amount    float64
	Status    string
	Strategy  string
	Reason    string
	CreatedAt time.Time
}

// Trade is a confirmed fill belonging to an order.
type Trade struct {
	ID        string
	OrderID   string
	Exchange  string
	Pair      string
	Side      string
	Rate      float64
	Amount    float64
	Fee       float64
	CreatedAt time.Time
}

// StrategyState is a persisted strategy snapshot keyed by
// (config nr, pair, strategy class).
type StrategyState struct {
	ConfigNr  int
	Pair      string
	Strategy  string
	StateData string // JSON blob produced by Strategy.Serialize
	UpdatedAt time.Time
}
