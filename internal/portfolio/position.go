package portfolio

import "time"

// PositionType classifies a margin position direction.
type PositionType string

const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
	PositionNone  PositionType = "none"
)

// TypeFromAmount derives the direction from a signed amount.
func TypeFromAmount(amount float64) PositionType {
	switch {
	case amount > 0:
		return PositionLong
	case amount < 0:
		return PositionShort
	default:
		return PositionNone
	}
}

// PositionTrade is one fill that contributed to a margin position. Profit and
// loss are computed from this list plus the current rate, not stored
// denormalized.
type PositionTrade struct {
	Rate   float64   `json:"rate"`
	Amount float64   `json:"amount"` // signed
	Time   time.Time `json:"time"`
}

// MarginPosition is the per exchange x pair margin state.
// Invariant: Type always agrees with the sign of Amount.
type MarginPosition struct {
	Pair       string          `json:"pair"`
	Amount     float64         `json:"amount"` // signed: >0 long, <0 short
	EntryPrice float64         `json:"entryPrice"`
	Leverage   float64         `json:"leverage"`
	Type       PositionType    `json:"type"`
	Trades     []PositionTrade `json:"trades,omitempty"`
}

// IsOpen reports whether the position holds any amount.
func (p MarginPosition) IsOpen() bool { return p.Amount != 0 }

// ProfitLossAt computes unrealized PnL against the given market rate from the
// position's trade list.
func (p MarginPosition) ProfitLossAt(rate float64) float64 {
	if len(p.Trades) == 0 {
		if p.EntryPrice == 0 {
			return 0
		}
		return (rate - p.EntryPrice) * p.Amount
	}
	var pl float64
	for _, t := range p.Trades {
		pl += (rate - t.Rate) * t.Amount
	}
	return pl
}

// applyFill folds a signed fill into the position, maintaining the averaged
// entry price and the sign/type invariant.
func (p *MarginPosition) applyFill(rate, signedAmount float64, at time.Time) {
	old := p.Amount
	p.Amount += signedAmount
	p.Trades = append(p.Trades, PositionTrade{Rate: rate, Amount: signedAmount, Time: at})

	switch {
	case p.Amount == 0:
		p.EntryPrice = 0
		p.Trades = nil
	case old == 0 || (old > 0) != (p.Amount > 0):
		// fresh open or flip through zero
		p.EntryPrice = rate
	case abs(p.Amount) > abs(old):
		// adding to the position: volume-weighted entry
		p.EntryPrice = (p.EntryPrice*abs(old) + rate*abs(signedAmount)) / abs(p.Amount)
	}
	p.Type = TypeFromAmount(p.Amount)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
