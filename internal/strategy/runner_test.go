package strategy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"advisor-core/internal/market"
)

type recordingCounter struct {
	mu     sync.Mutex
	events []string
}

func (c *recordingCounter) record(e string) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *recordingCounter) StartTick(pair string) { c.record("start") }
func (c *recordingCounter) DoneTick(pair string)  { c.record("done") }
func (c *recordingCounter) StartCandleTick(pair string, size time.Duration) {
	c.record("start-candle")
}
func (c *recordingCounter) DoneCandleTick(pair string, size time.Duration) {
	c.record("done-candle")
}

func (c *recordingCounter) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

type tickRecorder struct {
	*Base
	mu    sync.Mutex
	ticks []float64
	panic bool
}

func (s *tickRecorder) OnTrades(trades []market.Trade) {
	if s.panic {
		panic("boom")
	}
	s.mu.Lock()
	s.ticks = append(s.ticks, trades[0].Rate)
	s.mu.Unlock()
}

func (s *tickRecorder) OnCandle(candle market.Candle) {}

func (s *tickRecorder) rates() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.ticks...)
}

func tick(rate float64) []market.Trade {
	return []market.Trade{{Pair: "USD_BTC", Rate: rate, Amount: 1, Time: time.Now()}}
}

func TestRunnerProcessesTicksInOrder(t *testing.T) {
	counter := &recordingCounter{}
	strat := &tickRecorder{Base: NewBase(BaseConfig{Name: "rec", Pair: "USD_BTC"})}
	r := NewRunner(strat, counter, 8)
	defer r.Close()

	r.SendTick(tick(1))
	r.SendTick(tick(2))
	r.SendTick(tick(3))

	require.Eventually(t, func() bool {
		return len(strat.rates()) == 3
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []float64{1, 2, 3}, strat.rates())

	// Every tick was bracketed and brackets never overlapped.
	events := counter.snapshot()
	require.Equal(t, []string{"start", "done", "start", "done", "start", "done"}, events)
}

func TestRunnerClosesBracketOnPanic(t *testing.T) {
	counter := &recordingCounter{}
	strat := &tickRecorder{Base: NewBase(BaseConfig{Name: "rec", Pair: "USD_BTC"}), panic: true}
	r := NewRunner(strat, counter, 8)
	defer r.Close()

	r.SendTick(tick(1))

	require.Eventually(t, func() bool {
		events := counter.snapshot()
		return len(events) == 2 && events[1] == "done"
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerUpdatesMarketPriceBeforeDecision(t *testing.T) {
	counter := &recordingCounter{}
	strat := &tickRecorder{Base: NewBase(BaseConfig{Name: "rec", Pair: "USD_BTC"})}
	r := NewRunner(strat, counter, 8)
	defer r.Close()

	r.SendTick(tick(250))

	require.Eventually(t, func() bool {
		return strat.AvgMarketPrice() == 250
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerCandleBracket(t *testing.T) {
	counter := &recordingCounter{}
	strat := &tickRecorder{Base: NewBase(BaseConfig{Name: "rec", Pair: "USD_BTC", CandleSize: 5 * time.Minute})}
	r := NewRunner(strat, counter, 8)
	defer r.Close()

	r.SendCandleTick(market.Candle{Pair: "USD_BTC", Size: 5 * time.Minute, Close: 99})

	require.Eventually(t, func() bool {
		events := counter.snapshot()
		return len(events) == 2 && events[0] == "start-candle" && events[1] == "done-candle"
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 99.0, strat.AvgMarketPrice())
}
