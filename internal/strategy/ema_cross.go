package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"advisor-core/internal/market"
	"advisor-core/internal/portfolio"
)

// EMACross trades crossings of a fast over a slow exponential moving
// average on candle closes. A typical main strategy.
type EMACross struct {
	*Base
	turn  *TurnScheduler
	trend *TrendCapability // nil unless the trend filter is enabled

	fastPeriod int
	slowPeriod int

	fastEMA  float64
	slowEMA  float64
	prevDiff float64
	samples  int
}

type emaCrossParams struct {
	Fast       int `yaml:"fast"`
	Slow       int `yaml:"slow"`
	MinTurnMin int `yaml:"minTurnMinutes"`

	// Optional trend filter: crossings against the prevailing direction may
	// close a position but never open one.
	TrendFilter    bool    `yaml:"trendFilter"`
	TrendFast      int     `yaml:"trendFast"`
	TrendSlow      int     `yaml:"trendSlow"`
	TrendThreshold float64 `yaml:"trendThreshold"`
}

type emaCrossState struct {
	Base     json.RawMessage `json:"base"`
	FastEMA  float64         `json:"fastEMA"`
	SlowEMA  float64         `json:"slowEMA"`
	PrevDiff float64         `json:"prevDiff"`
	Samples  int             `json:"samples"`
}

func newEMACross(base *Base, params map[string]any) (Strategy, error) {
	var p emaCrossParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("ema_cross params: %w", err)
	}
	if p.Fast <= 0 {
		p.Fast = 12
	}
	if p.Slow <= p.Fast {
		p.Slow = 26
	}
	if p.MinTurnMin <= 0 {
		p.MinTurnMin = 15
	}
	s := &EMACross{
		Base:       base,
		turn:       NewTurnScheduler(time.Duration(p.MinTurnMin) * time.Minute),
		fastPeriod: p.Fast,
		slowPeriod: p.Slow,
	}
	if p.TrendFilter {
		s.trend = NewTrendCapability(p.TrendFast, p.TrendSlow, p.TrendThreshold)
	}
	return s, nil
}

// OnTrades is a no-op; this strategy decides on candles only.
func (s *EMACross) OnTrades(trades []market.Trade) {}

func (s *EMACross) OnCandle(candle market.Candle) {
	if s.trend != nil {
		s.trend.Update(candle.Close)
	}
	s.samples++
	s.fastEMA = ema(s.fastEMA, candle.Close, s.fastPeriod, s.samples)
	s.slowEMA = ema(s.slowEMA, candle.Close, s.slowPeriod, s.samples)

	diff := s.fastEMA - s.slowEMA
	defer func() { s.prevDiff = diff }()

	if s.samples <= s.slowPeriod {
		return
	}

	crossedUp := s.prevDiff <= 0 && diff > 0
	crossedDown := s.prevDiff >= 0 && diff < 0
	if !crossedUp && !crossedDown {
		return
	}
	if !s.turn.CanTurn() {
		return
	}

	reason := fmt.Sprintf("EMA %d/%d crossed %s at %.8f", s.fastPeriod, s.slowPeriod, direction(crossedUp), candle.Close)
	switch {
	case crossedUp && s.Position() == portfolio.PositionShort:
		s.EmitClose(s.DefaultWeight(), reason)
	case crossedUp:
		if s.againstTrend(TrendDown) {
			return
		}
		s.EmitBuy(s.DefaultWeight(), reason)
	case crossedDown && s.Position() == portfolio.PositionLong:
		s.EmitClose(s.DefaultWeight(), reason)
	case crossedDown:
		if s.againstTrend(TrendUp) {
			return
		}
		s.EmitSell(s.DefaultWeight(), reason)
	}
	s.turn.MarkTurn()
}

// againstTrend reports whether opening would fight the prevailing direction.
func (s *EMACross) againstTrend(adverse Trend) bool {
	return s.trend != nil && s.trend.Ready() && s.trend.Trend() == adverse
}

func (s *EMACross) Serialize() ([]byte, error) {
	base, err := s.Base.Serialize()
	if err != nil {
		return nil, err
	}
	return json.Marshal(emaCrossState{
		Base:     base,
		FastEMA:  s.fastEMA,
		SlowEMA:  s.slowEMA,
		PrevDiff: s.prevDiff,
		Samples:  s.samples,
	})
}

func (s *EMACross) Restore(data []byte) error {
	var st emaCrossState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if len(st.Base) > 0 {
		if err := s.Base.Restore(st.Base); err != nil {
			return err
		}
	}
	s.fastEMA = st.FastEMA
	s.slowEMA = st.SlowEMA
	s.prevDiff = st.PrevDiff
	s.samples = st.Samples
	return nil
}

// ema folds a new close into a running EMA, seeding with a plain average
// while the window is filling.
func ema(prev, close float64, period, samples int) float64 {
	if samples == 1 {
		return close
	}
	if samples <= period {
		return prev + (close-prev)/float64(samples)
	}
	k := 2.0 / (float64(period) + 1)
	return close*k + prev*(1-k)
}

func direction(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
