package market

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	ticks   int
	candles []Candle
}

func (c *captureSink) SendTick(pair string, trades []Trade) {
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
}

func (c *captureSink) SendCandleTick(candle Candle) {
	c.mu.Lock()
	c.candles = append(c.candles, candle)
	c.mu.Unlock()
}

func (c *captureSink) Send1MinCandleTick(candle Candle) {
	c.SendCandleTick(candle)
}

func (c *captureSink) all() []Candle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Candle(nil), c.candles...)
}

func at(minSec string) time.Time {
	ts, _ := time.Parse("15:04:05", minSec)
	return time.Date(2024, 5, 1, ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
}

func TestVWAP(t *testing.T) {
	trades := []Trade{
		{Rate: 100, Amount: 1},
		{Rate: 200, Amount: 3},
	}
	require.InDelta(t, 175.0, VWAP(trades), 1e-9)
	require.Equal(t, 0.0, VWAP(nil))
}

func TestBuilderEmitsOnMinuteRoll(t *testing.T) {
	sink := &captureSink{}
	b := NewCandleBuilder(sink)

	b.AddTrades("USD_BTC", []Trade{
		{Pair: "USD_BTC", Rate: 100, Amount: 1, Time: at("10:00:05")},
		{Pair: "USD_BTC", Rate: 110, Amount: 2, Time: at("10:00:30")},
		{Pair: "USD_BTC", Rate: 95, Amount: 1, Time: at("10:00:55")},
	})
	require.Empty(t, sink.all())

	// First trade of the next minute closes the bucket.
	b.AddTrades("USD_BTC", []Trade{
		{Pair: "USD_BTC", Rate: 98, Amount: 1, Time: at("10:01:02")},
	})

	candles := sink.all()
	require.Len(t, candles, 1)
	c := candles[0]
	require.Equal(t, time.Minute, c.Size)
	require.Equal(t, at("10:00:00"), c.Start)
	require.Equal(t, 100.0, c.Open)
	require.Equal(t, 110.0, c.High)
	require.Equal(t, 95.0, c.Low)
	require.Equal(t, 95.0, c.Close)
	require.InDelta(t, 4.0, c.Volume, 1e-9)
}

func TestBuilderTracksMultipleSizes(t *testing.T) {
	sink := &captureSink{}
	b := NewCandleBuilder(sink, 5*time.Minute)

	b.AddTrades("USD_BTC", []Trade{{Pair: "USD_BTC", Rate: 100, Amount: 1, Time: at("10:04:00")}})
	b.AddTrades("USD_BTC", []Trade{{Pair: "USD_BTC", Rate: 105, Amount: 1, Time: at("10:05:30")}})

	candles := sink.all()
	// Both the 1-minute and the 5-minute bucket rolled over.
	require.Len(t, candles, 2)
	sizes := map[time.Duration]bool{}
	for _, c := range candles {
		sizes[c.Size] = true
	}
	require.True(t, sizes[time.Minute])
	require.True(t, sizes[5*time.Minute])
}

func TestBuilderFlushEmitsOpenBuckets(t *testing.T) {
	sink := &captureSink{}
	b := NewCandleBuilder(sink)

	b.AddTrades("USD_BTC", []Trade{{Pair: "USD_BTC", Rate: 100, Amount: 1, Time: at("10:00:05")}})
	b.Flush()

	require.Len(t, sink.all(), 1)
}

func TestBuilderIgnoresZeroRates(t *testing.T) {
	sink := &captureSink{}
	b := NewCandleBuilder(sink)

	b.AddTrades("USD_BTC", []Trade{{Pair: "USD_BTC", Rate: 0, Amount: 1, Time: at("10:00:05")}})
	b.Flush()

	require.Empty(t, sink.all())
}
