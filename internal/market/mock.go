package market

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// MockFeedConfig tunes the simulated market.
type MockFeedConfig struct {
	Pair       string
	Exchange   string
	StartRate  float64
	Volatility float64       // relative step size per tick, e.g. 0.001
	Interval   time.Duration // time between tick batches
	Seed       int64         // 0 means time-seeded
}

// MockFeed generates a random-walk trade stream for paper trading and local
// development. It drives the sink exactly like a live feed would.
type MockFeed struct {
	cfg     MockFeedConfig
	sink    TickSink
	builder *CandleBuilder
	rng     *rand.Rand
	rate    float64
}

// NewMockFeed creates a simulated feed. builder may be nil to skip candles.
func NewMockFeed(cfg MockFeedConfig, sink TickSink, builder *CandleBuilder) *MockFeed {
	if cfg.StartRate <= 0 {
		cfg.StartRate = 100
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.001
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockFeed{
		cfg:     cfg,
		sink:    sink,
		builder: builder,
		rng:     rand.New(rand.NewSource(seed)),
		rate:    cfg.StartRate,
	}
}

// Run emits tick batches until ctx ends.
func (f *MockFeed) Run(ctx context.Context) {
	logrus.Infof("📈 mock feed for %s on %s started at %.4f", f.cfg.Pair, f.cfg.Exchange, f.rate)
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if f.builder != nil {
				f.builder.Flush()
			}
			return
		case now := <-ticker.C:
			trades := f.step(now)
			f.sink.SendTick(f.cfg.Pair, trades)
			if f.builder != nil {
				f.builder.AddTrades(f.cfg.Pair, trades)
			}
		}
	}
}

// step advances the walk and fabricates a small trade batch around it.
func (f *MockFeed) step(now time.Time) []Trade {
	f.rate *= 1 + (f.rng.Float64()*2-1)*f.cfg.Volatility
	n := 1 + f.rng.Intn(4)
	trades := make([]Trade, 0, n)
	for i := 0; i < n; i++ {
		jitter := 1 + (f.rng.Float64()*2-1)*f.cfg.Volatility/4
		trades = append(trades, Trade{
			Pair:     f.cfg.Pair,
			Exchange: f.cfg.Exchange,
			Rate:     f.rate * jitter,
			Amount:   0.01 + f.rng.Float64(),
			Time:     now,
		})
	}
	return trades
}
