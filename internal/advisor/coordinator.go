package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"advisor-core/internal/aggregator"
	"advisor-core/internal/events"
	"advisor-core/internal/market"
	"advisor-core/internal/notify"
	"advisor-core/internal/portfolio"
	"advisor-core/internal/strategy"
	"advisor-core/internal/trader"
	"advisor-core/pkg/db"
	"advisor-core/pkg/exchange"
)

// candleRetention is how many 1-minute candles are kept per pair for
// strategy warm-up after a cold start.
const candleRetention = 24 * 60

// groupRuntime is one wired strategy group: its strategies, their runners,
// the group's aggregator and its trader.
type groupRuntime struct {
	cfg     strategy.GroupConfig
	group   *strategy.Group
	agg     *aggregator.Aggregator
	trader  *trader.Trader
	runners []*strategy.Runner
}

// Coordinator owns the wiring between market data, strategies, aggregators
// and traders. It implements market.TickSink: feeds push batches in, the
// coordinator fans them out to the runners of every group trading that pair.
type Coordinator struct {
	database *db.Database
	bus      *events.Bus

	groups []*groupRuntime
	byPair map[string][]*groupRuntime

	mu      sync.Mutex
	candles map[string][]market.Candle // per pair, ascending, 1-minute
}

// New creates an empty coordinator. Groups are added before feeds start.
func New(database *db.Database, bus *events.Bus) *Coordinator {
	return &Coordinator{
		database: database,
		bus:      bus,
		byPair:   make(map[string][]*groupRuntime),
		candles:  make(map[string][]market.Candle),
	}
}

// AddGroup instantiates and wires every strategy of one config group. The
// group config may span multiple pairs; each pair gets its own group, trader
// and aggregator so pairs never contend on each other's tick windows.
func (c *Coordinator) AddGroup(cfg strategy.GroupConfig, gateways map[string]exchange.Gateway,
	store *portfolio.Store, notifier notify.Notifier, snapshot *portfolio.SnapshotWriter) error {

	selected := make(map[string]exchange.Gateway, len(cfg.Exchanges))
	for _, label := range cfg.Exchanges {
		gw, ok := gateways[label]
		if !ok {
			return fmt.Errorf("group %d: exchange %q not configured", cfg.ConfigNr, label)
		}
		selected[label] = gw
	}

	byPair := make(map[string][]strategy.InstanceConfig)
	for _, sc := range cfg.Strategies {
		byPair[sc.Pair] = append(byPair[sc.Pair], sc)
	}

	for pair, entries := range byPair {
		group := strategy.NewGroup(cfg.ConfigNr, pair)
		instances := make(map[string]strategy.Strategy, len(entries))
		for _, sc := range entries {
			s, err := strategy.New(sc)
			if err != nil {
				return fmt.Errorf("group %d %s: %w", cfg.ConfigNr, pair, err)
			}
			group.Add(s)
			instances[sc.Class] = s
		}
		for _, sc := range entries {
			if sc.DelegateTo == "" {
				continue
			}
			dst, ok := instances[sc.DelegateTo]
			if !ok {
				return fmt.Errorf("group %d %s: %s delegates to unknown strategy %q",
					cfg.ConfigNr, pair, sc.Class, sc.DelegateTo)
			}
			if err := strategy.Delegate(instances[sc.Class], dst); err != nil {
				return fmt.Errorf("group %d %s: %w", cfg.ConfigNr, pair, err)
			}
		}

		tr := trader.New(trader.Config{
			ConfigNr:               cfg.ConfigNr,
			MarginTrading:          cfg.MarginTrading,
			TradeTotalBase:         cfg.TradeTotalBase,
			Leverage:               cfg.Leverage,
			FlipPosition:           cfg.FlipPosition,
			MaxClosePartialPercent: cfg.MaxClosePartialPercent,
			Arbitrage:              cfg.Arbitrage,
			MaxTradeBalancePercent: cfg.MaxTradeBalancePercent,
			TradeDirection:         cfg.TradeDirection,
		}, selected, store, group, c.database, c.bus, notifier, snapshot)

		mainName := ""
		if main := group.Main(); main != nil {
			mainName = main.Name()
		}
		agg := aggregator.New(tr, c.bus, aggregator.Options{
			MainStrategy:     mainName,
			MainAlwaysTrades: cfg.MainStrategyAlways,
		})

		rt := &groupRuntime{cfg: cfg, group: group, agg: agg, trader: tr}
		for _, s := range group.All() {
			if setter, ok := s.(interface{ SetEmitter(strategy.Emitter) }); ok {
				setter.SetEmitter(agg)
			}
			rt.runners = append(rt.runners, strategy.NewRunner(s, agg, 0))
		}

		c.groups = append(c.groups, rt)
		c.byPair[pair] = append(c.byPair[pair], rt)
		logrus.Infof("🧩 group %d %s: %d strategies wired on %d exchange(s)",
			cfg.ConfigNr, pair, len(entries), len(selected))
	}
	return nil
}

// SyncTargets lists every group with the exchanges it trades, for the resync
// loop's scoped fan-out.
func (c *Coordinator) SyncTargets() []trader.SyncTarget {
	out := make([]trader.SyncTarget, 0, len(c.groups))
	for _, rt := range c.groups {
		out = append(out, trader.SyncTarget{Group: rt.group, Exchanges: rt.cfg.Exchanges})
	}
	return out
}

// Traders returns every wired trader.
func (c *Coordinator) Traders() []*trader.Trader {
	out := make([]*trader.Trader, 0, len(c.groups))
	for _, rt := range c.groups {
		out = append(out, rt.trader)
	}
	return out
}

// SendTick fans a trade batch out to every strategy trading the pair.
func (c *Coordinator) SendTick(pair string, trades []market.Trade) {
	if len(trades) == 0 {
		return
	}
	if c.bus != nil {
		c.bus.Publish(events.EventTradeTick, pair)
	}
	for _, rt := range c.byPair[pair] {
		for _, r := range rt.runners {
			r.SendTick(trades)
		}
	}
}

// SendCandleTick routes a closed candle to the strategies configured for its
// size.
func (c *Coordinator) SendCandleTick(candle market.Candle) {
	if c.bus != nil {
		c.bus.Publish(events.EventCandleTick, candle.Pair)
	}
	for _, rt := range c.byPair[candle.Pair] {
		for _, r := range rt.runners {
			if r.Strategy().CandleSize() == candle.Size {
				r.SendCandleTick(candle)
			}
		}
	}
}

// Send1MinCandleTick retains the candle for warm-up and routes it like any
// other candle tick.
func (c *Coordinator) Send1MinCandleTick(candle market.Candle) {
	c.mu.Lock()
	ring := append(c.candles[candle.Pair], candle)
	if len(ring) > candleRetention {
		ring = ring[len(ring)-candleRetention:]
	}
	c.candles[candle.Pair] = ring
	c.mu.Unlock()

	c.SendCandleTick(candle)
}

// SaveStates snapshots every strategy into the database. Called periodically
// and on shutdown.
func (c *Coordinator) SaveStates(ctx context.Context) {
	if c.database == nil {
		return
	}
	for _, rt := range c.groups {
		for _, s := range rt.group.All() {
			data, err := s.Serialize()
			if err != nil {
				logrus.Errorf("serializing %s %s: %v", s.Name(), s.Pair(), err)
				continue
			}
			err = c.database.SaveStrategyState(ctx, db.StrategyState{
				ConfigNr:  rt.group.ConfigNr,
				Pair:      s.Pair(),
				Strategy:  s.Name(),
				StateData: string(data),
			})
			if err != nil {
				logrus.Errorf("saving state of %s %s: %v", s.Name(), s.Pair(), err)
			}
		}
	}
}

// RunStateSaver persists strategy states on an interval until ctx ends.
func (c *Coordinator) RunStateSaver(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SaveStates(ctx)
		}
	}
}

// RestoreStates brings every strategy back to its pre-restart state, trying
// in order: its own stored snapshot, the snapshot of a peer in the same
// group with the same candle size, and finally a warm-up replay of retained
// 1-minute candles. Whatever succeeds first wins; a cold start is fine.
func (c *Coordinator) RestoreStates(ctx context.Context) {
	for _, rt := range c.groups {
		for _, s := range rt.group.All() {
			if c.restoreOwn(ctx, rt, s) {
				continue
			}
			if c.restorePeer(ctx, rt, s) {
				continue
			}
			c.warmUp(s)
		}
	}
}

func (c *Coordinator) restoreOwn(ctx context.Context, rt *groupRuntime, s strategy.Strategy) bool {
	if c.database == nil {
		return false
	}
	st, err := c.database.LoadStrategyState(ctx, rt.group.ConfigNr, s.Pair(), s.Name())
	if errors.Is(err, db.ErrNotFound) {
		return false
	}
	if err != nil {
		logrus.Errorf("loading state of %s %s: %v", s.Name(), s.Pair(), err)
		return false
	}
	if err := s.Restore([]byte(st.StateData)); err != nil {
		logrus.Warnf("restoring %s %s from own snapshot: %v", s.Name(), s.Pair(), err)
		return false
	}
	logrus.Infof("♻️ %s %s: state restored", s.Name(), s.Pair())
	return true
}

// restorePeer borrows the snapshot of another strategy in the group with the
// same candle size. Indicator windows line up, so the borrowed market view is
// usable even though strategy-specific fields may not apply.
func (c *Coordinator) restorePeer(ctx context.Context, rt *groupRuntime, s strategy.Strategy) bool {
	if c.database == nil {
		return false
	}
	states, err := c.database.LoadStrategyStatesForPair(ctx, rt.group.ConfigNr, s.Pair())
	if err != nil {
		logrus.Errorf("loading peer states for %s: %v", s.Pair(), err)
		return false
	}
	for _, st := range states {
		peer := rt.group.ByName(st.Strategy)
		if peer == nil || peer.Name() == s.Name() || peer.CandleSize() != s.CandleSize() {
			continue
		}
		if err := s.Restore([]byte(st.StateData)); err != nil {
			continue
		}
		logrus.Infof("♻️ %s %s: state borrowed from peer %s", s.Name(), s.Pair(), st.Strategy)
		return true
	}
	return false
}

// warmUp replays retained 1-minute candles through the strategy, aggregated
// to its configured candle size.
func (c *Coordinator) warmUp(s strategy.Strategy) {
	size := s.CandleSize()
	if size <= 0 {
		return
	}
	c.mu.Lock()
	ring := append([]market.Candle(nil), c.candles[s.Pair()]...)
	c.mu.Unlock()
	if len(ring) == 0 {
		return
	}
	replay := aggregateCandles(ring, size)
	for _, candle := range replay {
		s.OnCandle(candle)
	}
	logrus.Infof("🔥 %s %s: warmed up from %d retained candle(s)", s.Name(), s.Pair(), len(replay))
}

// aggregateCandles rolls 1-minute candles up into larger buckets. Partial
// trailing buckets are dropped.
func aggregateCandles(minutes []market.Candle, size time.Duration) []market.Candle {
	if size <= time.Minute {
		return minutes
	}
	var out []market.Candle
	var cur *market.Candle
	for _, m := range minutes {
		start := m.Start.Truncate(size)
		if cur == nil || !cur.Start.Equal(start) {
			if cur != nil {
				out = append(out, *cur)
			}
			cp := m
			cp.Start = start
			cp.Size = size
			cur = &cp
			continue
		}
		if m.High > cur.High {
			cur.High = m.High
		}
		if m.Low < cur.Low {
			cur.Low = m.Low
		}
		cur.Close = m.Close
		cur.Volume += m.Volume
	}
	if cur != nil && cur.Start.Add(size).Sub(minutes[len(minutes)-1].Start) <= time.Minute {
		out = append(out, *cur)
	}
	return out
}

// FindStrategy locates a strategy by name and pair across all groups.
func (c *Coordinator) FindStrategy(name, pair string) strategy.Strategy {
	for _, rt := range c.groups {
		if rt.group.Pair != pair {
			continue
		}
		if s := rt.group.ByName(name); s != nil {
			return s
		}
	}
	return nil
}

// StrategyInfo is the operational view of one wired instance.
type StrategyInfo struct {
	ConfigNr   int           `json:"configNr"`
	Name       string        `json:"name"`
	Pair       string        `json:"pair"`
	CandleSize time.Duration `json:"candleSize"`
	Main       bool          `json:"main"`
	Disabled   bool          `json:"disabled"`
}

// StrategyInfos lists every wired strategy for the operational API.
func (c *Coordinator) StrategyInfos() []StrategyInfo {
	var out []StrategyInfo
	for _, rt := range c.groups {
		for _, s := range rt.group.All() {
			out = append(out, StrategyInfo{
				ConfigNr:   rt.group.ConfigNr,
				Name:       s.Name(),
				Pair:       s.Pair(),
				CandleSize: s.CandleSize(),
				Main:       s.IsMain(),
				Disabled:   s.Disabled(),
			})
		}
	}
	return out
}

// SetDisabled pauses or resumes a strategy by name and pair.
func (c *Coordinator) SetDisabled(name, pair string, disabled bool) error {
	s := c.FindStrategy(name, pair)
	if s == nil {
		return fmt.Errorf("strategy %s %s not found", name, pair)
	}
	toggler, ok := s.(interface{ Disable(bool) })
	if !ok {
		return fmt.Errorf("strategy %s cannot be toggled", name)
	}
	toggler.Disable(disabled)
	logrus.Infof("strategy %s %s disabled=%v", name, pair, disabled)
	return nil
}

// Close stops every runner after its current task.
func (c *Coordinator) Close() {
	for _, rt := range c.groups {
		for _, r := range rt.runners {
			r.Close()
		}
	}
}
