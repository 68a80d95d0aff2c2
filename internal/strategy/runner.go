package strategy

import (
	"sync"

	"github.com/sirupsen/logrus"

	"advisor-core/internal/market"
)

// Runner serializes all tick processing for one strategy instance. A single
// consumer goroutine drains the task queue, so a strategy never observes two
// ticks concurrently and StartTick(K+1) can never precede DoneTick(K).
//
// Every tick is bracketed by Start/Done calls on the aggregator's counter.
// Panics inside decision logic are recovered so the bracket always closes
// and the aggregator's wait count cannot deadlock.
type Runner struct {
	strat   Strategy
	counter TickCounter

	tasks chan func()
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewRunner starts the consumer goroutine for one strategy.
func NewRunner(strat Strategy, counter TickCounter, queueSize int) *Runner {
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &Runner{
		strat:   strat,
		counter: counter,
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Runner) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case task := <-r.tasks:
			task()
		}
	}
}

// Strategy returns the wrapped instance.
func (r *Runner) Strategy() Strategy { return r.strat }

// SendTick queues a trade-tick for processing.
func (r *Runner) SendTick(trades []market.Trade) {
	r.enqueue(func() {
		r.counter.StartTick(r.strat.Pair())
		defer r.counter.DoneTick(r.strat.Pair())
		defer r.recoverTick("trade tick")

		if base, ok := r.strat.(interface{ UpdateMarketPrice([]market.Trade) }); ok {
			base.UpdateMarketPrice(trades)
		}
		r.strat.OnTrades(trades)
	})
}

// SendCandleTick queues a candle tick. Only strategies configured with a
// matching candle size participate; the coordinator filters before calling.
func (r *Runner) SendCandleTick(candle market.Candle) {
	r.enqueue(func() {
		r.counter.StartCandleTick(r.strat.Pair(), candle.Size)
		defer r.counter.DoneCandleTick(r.strat.Pair(), candle.Size)
		defer r.recoverTick("candle tick")

		if base, ok := r.strat.(interface{ UpdateMarketRate(float64) }); ok {
			base.UpdateMarketRate(candle.Close)
		}
		r.strat.OnCandle(candle)
	})
}

func (r *Runner) enqueue(task func()) {
	select {
	case r.tasks <- task:
	case <-r.stop:
	}
}

// recoverTick keeps a misbehaving strategy from killing the tick chain.
func (r *Runner) recoverTick(kind string) {
	if rec := recover(); rec != nil {
		logrus.Errorf("strategy %s %s: panic during %s: %v", r.strat.Name(), r.strat.Pair(), kind, rec)
	}
}

// Close stops the consumer after the current task finishes.
func (r *Runner) Close() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
