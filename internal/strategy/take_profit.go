package strategy

import (
	"fmt"

	"advisor-core/internal/market"
	"advisor-core/internal/portfolio"
)

// TakeProfit closes a winning position once unrealized profit exceeds the
// configured percentage. Like StopLoss it emits with the sentinel weight.
type TakeProfit struct {
	*Base

	profitPercent float64
	trailing      float64 // optional: give back this much from the peak before closing
	peakRate      float64
}

type takeProfitParams struct {
	ProfitPercent   float64 `yaml:"profit"`
	TrailingPercent float64 `yaml:"trailing"`
}

func newTakeProfit(base *Base, params map[string]any) (Strategy, error) {
	var p takeProfitParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("take_profit params: %w", err)
	}
	if p.ProfitPercent <= 0 {
		p.ProfitPercent = 10
	}
	return &TakeProfit{Base: base, profitPercent: p.ProfitPercent, trailing: p.TrailingPercent}, nil
}

func (s *TakeProfit) OnTrades(trades []market.Trade) {
	rate := s.AvgMarketPrice()
	entry := s.EntryPrice()
	pos := s.Position()
	if rate <= 0 || entry <= 0 || pos == portfolio.PositionNone {
		s.peakRate = 0
		return
	}

	var profitPct float64
	switch pos {
	case portfolio.PositionLong:
		profitPct = (rate - entry) / entry * 100
	case portfolio.PositionShort:
		profitPct = (entry - rate) / entry * 100
	}
	if profitPct < s.profitPercent {
		return
	}

	if s.trailing <= 0 {
		s.EmitClose(MaxWeight, fmt.Sprintf("take profit of %.2f%% reached at %.8f", profitPct, rate))
		return
	}

	// Trailing mode: ride the move, close after giving back trailing% from
	// the best rate seen.
	favorable := pos == portfolio.PositionLong
	if s.peakRate == 0 || (favorable && rate > s.peakRate) || (!favorable && rate < s.peakRate) {
		s.peakRate = rate
		return
	}
	var giveback float64
	if favorable {
		giveback = (s.peakRate - rate) / s.peakRate * 100
	} else {
		giveback = (rate - s.peakRate) / s.peakRate * 100
	}
	if giveback >= s.trailing {
		s.EmitClose(MaxWeight, fmt.Sprintf("trailing take profit: gave back %.2f%% from peak %.8f", giveback, s.peakRate))
		s.peakRate = 0
	}
}

// OnCandle is a no-op; profit taking reacts to raw trade flow.
func (s *TakeProfit) OnCandle(candle market.Candle) {}
