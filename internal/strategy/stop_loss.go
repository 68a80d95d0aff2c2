package strategy

import (
	"fmt"
	"time"

	"advisor-core/internal/market"
	"advisor-core/internal/portfolio"
)

// StopLoss watches every trade tick and force-closes a position once the
// rate moves a configured percentage against the entry. The close carries
// the sentinel weight, so it preempts whatever the other strategies are
// voting on in the same tick.
type StopLoss struct {
	*Base
	timeout *TimeoutTracker

	stopPercent float64
	armed       bool
}

type stopLossParams struct {
	StopPercent float64 `yaml:"stop"` // percent loss from entry, e.g. 5
	TimeSec     int     `yaml:"time"` // grace period once breached; 0 fires immediately
}

func newStopLoss(base *Base, params map[string]any) (Strategy, error) {
	var p stopLossParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("stop_loss params: %w", err)
	}
	if p.StopPercent <= 0 {
		p.StopPercent = 5
	}
	s := &StopLoss{Base: base, stopPercent: p.StopPercent}
	s.timeout = NewTimeoutTracker(time.Duration(p.TimeSec)*time.Second, func() {
		s.EmitClose(MaxWeight, fmt.Sprintf("stop of %.2f%% held for %ds", p.StopPercent, p.TimeSec))
	})
	return s, nil
}

func (s *StopLoss) OnTrades(trades []market.Trade) {
	rate := s.AvgMarketPrice()
	entry := s.EntryPrice()
	pos := s.Position()
	if rate <= 0 || entry <= 0 || pos == portfolio.PositionNone {
		s.armed = false
		s.timeout.Stop()
		return
	}

	breached := false
	switch pos {
	case portfolio.PositionLong:
		breached = rate <= entry*(1-s.stopPercent/100)
	case portfolio.PositionShort:
		breached = rate >= entry*(1+s.stopPercent/100)
	}

	if !breached {
		s.armed = false
		s.timeout.Stop()
		return
	}

	// With no grace period the stop fires on the breaching tick.
	if !s.timeout.Active() && !s.armed {
		s.armed = true
		if s.timeoutDisabled() {
			s.EmitClose(MaxWeight, fmt.Sprintf("stop of %.2f%% reached at %.8f (entry %.8f)", s.stopPercent, rate, entry))
			return
		}
		s.timeout.Start(rate)
	}
	s.timeout.Check(rate, pos == portfolio.PositionLong)
}

func (s *StopLoss) timeoutDisabled() bool { return s.timeout.timeout <= 0 }

// OnCandle is a no-op; stops react to raw trade flow.
func (s *StopLoss) OnCandle(candle market.Candle) {}
