package strategy

// Trend classifies the recent market direction.
type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

// TrendCapability tracks a fast and a slow moving average of the market
// rate. Leverage-aware strategies hold one and delegate to it explicitly
// instead of inheriting trend tracking.
type TrendCapability struct {
	fastPeriod int
	slowPeriod int
	threshold  float64 // relative distance below which the market is sideways
	closes     []float64
}

// NewTrendCapability creates a tracker with the given MA periods.
func NewTrendCapability(fastPeriod, slowPeriod int, threshold float64) *TrendCapability {
	if fastPeriod <= 0 {
		fastPeriod = 7
	}
	if slowPeriod <= fastPeriod {
		slowPeriod = fastPeriod * 3
	}
	if threshold <= 0 {
		threshold = 0.001
	}
	return &TrendCapability{fastPeriod: fastPeriod, slowPeriod: slowPeriod, threshold: threshold}
}

// Update folds a new rate into the tracked window.
func (t *TrendCapability) Update(rate float64) {
	t.closes = append(t.closes, rate)
	if len(t.closes) > t.slowPeriod {
		t.closes = t.closes[len(t.closes)-t.slowPeriod:]
	}
}

// Ready reports whether enough samples have been seen.
func (t *TrendCapability) Ready() bool { return len(t.closes) >= t.slowPeriod }

// Trend returns the current market direction.
func (t *TrendCapability) Trend() Trend {
	if !t.Ready() {
		return TrendSideways
	}
	fast := mean(t.closes[len(t.closes)-t.fastPeriod:])
	slow := mean(t.closes)
	if slow == 0 {
		return TrendSideways
	}
	diff := (fast - slow) / slow
	switch {
	case diff > t.threshold:
		return TrendUp
	case diff < -t.threshold:
		return TrendDown
	default:
		return TrendSideways
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
