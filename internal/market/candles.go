package market

import (
	"sync"
	"time"
)

// CandleBuilder rolls raw trades into fixed-size candles and pushes every
// completed bucket into the sink. One-minute candles always participate;
// additional sizes come from the strategy configuration.
type CandleBuilder struct {
	sink  TickSink
	sizes []time.Duration

	mu      sync.Mutex
	buckets map[string]map[time.Duration]*Candle // pair -> size -> open bucket
}

// NewCandleBuilder creates a builder for the given candle sizes. The
// one-minute size is added when missing.
func NewCandleBuilder(sink TickSink, sizes ...time.Duration) *CandleBuilder {
	hasMinute := false
	clean := make([]time.Duration, 0, len(sizes)+1)
	for _, s := range sizes {
		if s <= 0 {
			continue
		}
		if s == time.Minute {
			hasMinute = true
		}
		clean = append(clean, s)
	}
	if !hasMinute {
		clean = append(clean, time.Minute)
	}
	return &CandleBuilder{
		sink:    sink,
		sizes:   clean,
		buckets: make(map[string]map[time.Duration]*Candle),
	}
}

// AddTrades folds a trade batch into every open bucket for the pair,
// emitting buckets whose window has passed.
func (b *CandleBuilder) AddTrades(pair string, trades []Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range trades {
		if t.Rate <= 0 {
			continue
		}
		if b.buckets[pair] == nil {
			b.buckets[pair] = make(map[time.Duration]*Candle)
		}
		for _, size := range b.sizes {
			start := t.Time.Truncate(size)
			cur := b.buckets[pair][size]
			if cur != nil && !cur.Start.Equal(start) {
				b.emit(*cur)
				cur = nil
			}
			if cur == nil {
				b.buckets[pair][size] = &Candle{
					Pair:     pair,
					Exchange: t.Exchange,
					Size:     size,
					Open:     t.Rate,
					High:     t.Rate,
					Low:      t.Rate,
					Close:    t.Rate,
					Volume:   t.Amount,
					Start:    start,
				}
				continue
			}
			if t.Rate > cur.High {
				cur.High = t.Rate
			}
			if t.Rate < cur.Low {
				cur.Low = t.Rate
			}
			cur.Close = t.Rate
			cur.Volume += t.Amount
		}
	}
}

// Flush emits every open bucket regardless of window completion. Used at
// shutdown so the tail of the stream is not lost.
func (b *CandleBuilder) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sizes := range b.buckets {
		for size, c := range sizes {
			if c != nil {
				b.emit(*c)
				delete(sizes, size)
			}
		}
	}
}

func (b *CandleBuilder) emit(c Candle) {
	if c.Size == time.Minute {
		b.sink.Send1MinCandleTick(c)
		return
	}
	b.sink.SendCandleTick(c)
}
