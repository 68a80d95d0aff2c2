package aggregator

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"advisor-core/internal/events"
	"advisor-core/internal/strategy"
)

// Executor submits a winning signal for execution. Implemented by the trader.
type Executor interface {
	CallAction(ctx context.Context, pair string, trade strategy.ScheduledTrade) error
}

// Options tunes signal selection for one strategy group.
type Options struct {
	// MainStrategy names the group's main strategy class.
	MainStrategy string
	// MainAlwaysTrades short-circuits aggregation for signals from the main
	// strategy: they execute immediately instead of competing by weight.
	MainAlwaysTrades bool
}

// pending is the per-pair aggregation window.
type pending struct {
	queue         tradeQueue
	tickWaiting   int
	candleWaiting map[time.Duration]int
}

func (p *pending) outstanding() int {
	n := p.tickWaiting
	for _, c := range p.candleWaiting {
		n += c
	}
	return n
}

// Aggregator collects weighted signals per pair during a tick window and
// dispatches exactly one winner once every participating strategy has
// reported. Implements strategy.Emitter and strategy.TickCounter.
type Aggregator struct {
	exec Executor
	bus  *events.Bus
	opts Options

	mu    sync.Mutex
	seq   uint64
	pairs map[string]*pending
}

// New creates an aggregator for one strategy group.
func New(exec Executor, bus *events.Bus, opts Options) *Aggregator {
	return &Aggregator{
		exec:  exec,
		bus:   bus,
		opts:  opts,
		pairs: make(map[string]*pending),
	}
}

func (a *Aggregator) pair(p string) *pending {
	st, ok := a.pairs[p]
	if !ok {
		st = &pending{candleWaiting: make(map[time.Duration]int)}
		a.pairs[p] = st
	}
	return st
}

// Emit queues a signal for the pair's current window. Signals carrying the
// force-execute sentinel, and main-strategy signals when MainAlwaysTrades is
// set, bypass the queue: they dispatch immediately and discard everything
// queued so far.
func (a *Aggregator) Emit(pair string, trade strategy.ScheduledTrade) {
	a.mu.Lock()
	st := a.pair(pair)

	immediate := trade.Immediate() ||
		(a.opts.MainAlwaysTrades && a.opts.MainStrategy != "" && trade.Strategy == a.opts.MainStrategy)
	if immediate {
		if n := st.queue.Len(); n > 0 {
			logrus.Infof("⚡ %s: %s from %s preempts %d queued signal(s)", pair, trade.Action, trade.Strategy, n)
		}
		st.queue = st.queue[:0]
		a.mu.Unlock()
		a.dispatch(pair, trade)
		return
	}

	heap.Push(&st.queue, queuedTrade{trade: trade, seq: a.seq})
	a.seq++
	logrus.Debugf("%s: queued %s from %s (weight %.0f, %d pending)", pair, trade.Action, trade.Strategy, trade.Weight, st.queue.Len())

	// A signal outside any tick window wins by default.
	if st.outstanding() == 0 {
		winner, ok := a.takeWinnerLocked(st)
		a.mu.Unlock()
		if ok {
			a.dispatch(pair, winner)
		}
		return
	}
	a.mu.Unlock()
}

// StartTick marks one strategy as working on a trade tick for the pair.
func (a *Aggregator) StartTick(pair string) {
	a.mu.Lock()
	a.pair(pair).tickWaiting++
	a.mu.Unlock()
}

// DoneTick marks one strategy as finished with its trade tick. The last one
// out triggers winner selection.
func (a *Aggregator) DoneTick(pair string) {
	a.mu.Lock()
	st := a.pair(pair)
	st.tickWaiting--
	if st.tickWaiting < 0 {
		st.tickWaiting = 0
		a.reportUnderflow(pair, "trade tick")
	}
	a.finishLocked(pair, st, st.tickWaiting)
}

// StartCandleTick marks one strategy as working on a candle of the given size.
func (a *Aggregator) StartCandleTick(pair string, size time.Duration) {
	a.mu.Lock()
	a.pair(pair).candleWaiting[size]++
	a.mu.Unlock()
}

// DoneCandleTick marks one strategy as finished with its candle tick.
func (a *Aggregator) DoneCandleTick(pair string, size time.Duration) {
	a.mu.Lock()
	st := a.pair(pair)
	st.candleWaiting[size]--
	if st.candleWaiting[size] < 0 {
		st.candleWaiting[size] = 0
		a.reportUnderflow(pair, "candle tick")
	}
	a.finishLocked(pair, st, st.candleWaiting[size])
}

// finishLocked dispatches the queued winner once the window whose counter
// just dropped has no participants left. Each counter closes its own window:
// trade ticks and every candle size resolve independently, so an open
// trade-tick window never holds back a candle window's winner. Unlocks a.mu.
func (a *Aggregator) finishLocked(pair string, st *pending, remaining int) {
	if remaining > 0 {
		a.mu.Unlock()
		return
	}
	winner, ok := a.takeWinnerLocked(st)
	a.mu.Unlock()
	if ok {
		a.dispatch(pair, winner)
	}
}

// takeWinnerLocked pops the highest-weight signal and discards the rest.
func (a *Aggregator) takeWinnerLocked(st *pending) (strategy.ScheduledTrade, bool) {
	if st.queue.Len() == 0 {
		return strategy.ScheduledTrade{}, false
	}
	winner := heap.Pop(&st.queue).(queuedTrade).trade
	if n := st.queue.Len(); n > 0 {
		logrus.Debugf("discarding %d losing signal(s)", n)
	}
	st.queue = st.queue[:0]
	return winner, true
}

func (a *Aggregator) reportUnderflow(pair, kind string) {
	logrus.Warnf("⚠️ %s: %s counter went negative, tick bracket mismatch", pair, kind)
	if a.bus != nil {
		a.bus.Publish(events.EventSchedulingError, pair)
	}
}

func (a *Aggregator) dispatch(pair string, trade strategy.ScheduledTrade) {
	logrus.Infof("📤 %s: dispatching %s from %s (%s)", pair, trade.Action, trade.Strategy, trade.Reason)
	if err := a.exec.CallAction(context.Background(), pair, trade); err != nil {
		logrus.Errorf("❌ %s: executing %s failed: %v", pair, trade.Action, err)
	}
}
