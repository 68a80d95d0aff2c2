package market

import "time"

// Trade is a single executed trade observed on an exchange.
type Trade struct {
	Pair     string
	Exchange string
	Rate     float64
	Amount   float64
	Time     time.Time
}

// Candle is a fixed-size time-bucketed OHLCV record produced upstream.
type Candle struct {
	Pair     string
	Exchange string
	Size     time.Duration // bucket size, e.g. time.Minute
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Start    time.Time
}

// VWAP returns the volume-weighted average rate of a trade batch, or 0 for an
// empty batch.
func VWAP(trades []Trade) float64 {
	var notional, volume float64
	for _, t := range trades {
		notional += t.Rate * t.Amount
		volume += t.Amount
	}
	if volume == 0 {
		return 0
	}
	return notional / volume
}

// TickSink consumes market data batches. The advisor coordinator implements
// this; feeds only know the interface.
type TickSink interface {
	SendTick(pair string, trades []Trade)
	SendCandleTick(candle Candle)
	Send1MinCandleTick(candle Candle)
}
