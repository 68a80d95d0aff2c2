package strategy

import (
	"encoding/json"
	"fmt"

	"advisor-core/internal/market"
)

// RSIStrategy signals on relative-strength extremes from candle closes.
// Usually configured as a secondary opinion with a lower weight than the
// main strategy.
type RSIStrategy struct {
	*Base

	period     int
	oversold   float64
	overbought float64
	closes     []float64
}

type rsiParams struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

type rsiState struct {
	Base   json.RawMessage `json:"base"`
	Closes []float64       `json:"closes"`
}

func newRSI(base *Base, params map[string]any) (Strategy, error) {
	var p rsiParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("rsi params: %w", err)
	}
	if p.Period <= 0 {
		p.Period = 14
	}
	if p.Oversold <= 0 {
		p.Oversold = 30
	}
	if p.Overbought <= 0 {
		p.Overbought = 70
	}
	return &RSIStrategy{Base: base, period: p.Period, oversold: p.Oversold, overbought: p.Overbought}, nil
}

// OnTrades is a no-op; this strategy decides on candles only.
func (s *RSIStrategy) OnTrades(trades []market.Trade) {}

func (s *RSIStrategy) OnCandle(candle market.Candle) {
	s.closes = append(s.closes, candle.Close)
	if len(s.closes) > s.period+1 {
		s.closes = s.closes[len(s.closes)-s.period-1:]
	}
	if len(s.closes) < s.period+1 {
		return
	}

	value := rsi(s.closes)
	switch {
	case value <= s.oversold:
		s.EmitBuy(s.DefaultWeight(), fmt.Sprintf("RSI %.1f below oversold %.1f", value, s.oversold))
	case value >= s.overbought:
		s.EmitSell(s.DefaultWeight(), fmt.Sprintf("RSI %.1f above overbought %.1f", value, s.overbought))
	}
}

func (s *RSIStrategy) Serialize() ([]byte, error) {
	base, err := s.Base.Serialize()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rsiState{Base: base, Closes: s.closes})
}

func (s *RSIStrategy) Restore(data []byte) error {
	var st rsiState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if len(st.Base) > 0 {
		if err := s.Base.Restore(st.Base); err != nil {
			return err
		}
	}
	s.closes = st.Closes
	return nil
}

// rsi computes a simple-average RSI over the closes window.
func rsi(closes []float64) float64 {
	var gains, losses float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
