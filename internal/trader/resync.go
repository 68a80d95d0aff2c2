package trader

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"advisor-core/internal/events"
	"advisor-core/internal/notify"
	"advisor-core/internal/portfolio"
	"advisor-core/internal/strategy"
	"advisor-core/pkg/exchange"
)

// SyncTarget binds one strategy group to the exchanges its trader actually
// uses. A group only ever hears about those exchanges' state.
type SyncTarget struct {
	Group     *strategy.Group
	Exchanges []string
}

func (t SyncTarget) trades(label string) bool {
	for _, l := range t.Exchanges {
		if l == label {
			return true
		}
	}
	return false
}

// Resyncer periodically pulls balances and margin positions from every
// exchange and overwrites the local view. The exchange report is
// authoritative: local bookkeeping that drifted (missed fills, manual trades,
// funding) is corrected here, and every group trading that exchange is told
// about the corrected state.
type Resyncer struct {
	store    *portfolio.Store
	gateways map[string]exchange.Gateway
	targets  []SyncTarget
	bus      *events.Bus
	notifier notify.Notifier
	snapshot *portfolio.SnapshotWriter
	interval time.Duration
}

// NewResyncer wires the periodic portfolio reconciliation loop.
func NewResyncer(store *portfolio.Store, gateways map[string]exchange.Gateway,
	targets []SyncTarget, bus *events.Bus, notifier notify.Notifier,
	snapshot *portfolio.SnapshotWriter, interval time.Duration) *Resyncer {

	if interval <= 0 {
		interval = time.Minute
	}
	return &Resyncer{
		store:    store,
		gateways: gateways,
		targets:  targets,
		bus:      bus,
		notifier: notifier,
		snapshot: snapshot,
		interval: interval,
	}
}

// Run syncs once immediately, then on every interval tick until ctx ends.
func (r *Resyncer) Run(ctx context.Context) {
	r.SyncOnce(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SyncOnce(ctx)
		}
	}
}

// SyncOnce reconciles every exchange. A failing exchange is logged and
// alerted but never blocks the others, and the stale local state for it is
// left untouched until the next attempt succeeds.
func (r *Resyncer) SyncOnce(ctx context.Context) {
	for label, gw := range r.gateways {
		if err := r.syncExchange(ctx, label, gw); err != nil {
			logrus.Errorf("❌ resync %s: %v", label, err)
			if r.notifier != nil {
				_ = r.notifier.Send(ctx, notify.Notification{
					Title:    "portfolio resync failed",
					Message:  err.Error(),
					Exchange: label,
					Kind:     "api_error",
				})
			}
		}
	}
}

func (r *Resyncer) syncExchange(ctx context.Context, label string, gw exchange.Gateway) error {
	balances, err := gw.GetBalances(ctx)
	if err != nil {
		return err
	}
	report := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		report[b.Currency] = decimal.NewFromFloat(b.Available)
	}
	r.store.SetBalances(label, report)

	positions, err := gw.GetMarginPositions(ctx)
	if err != nil {
		return err
	}
	reported := make(map[string]bool, len(positions))
	for _, p := range positions {
		reported[p.Pair] = true
		r.store.SetPosition(label, portfolio.MarginPosition{
			Pair:       p.Pair,
			Amount:     p.Amount,
			EntryPrice: p.EntryPrice,
			Leverage:   p.Leverage,
		})
	}
	// Positions we track locally but the exchange no longer reports are gone.
	for _, p := range r.store.Positions(label) {
		if !reported[p.Pair] {
			logrus.Warnf("⚠️ resync %s: local %s position not reported by exchange, clearing", label, p.Pair)
			r.store.SetPosition(label, portfolio.MarginPosition{Pair: p.Pair})
		}
	}
	r.store.MarkSynced(label)

	for _, t := range r.targets {
		if !t.trades(label) {
			continue
		}
		pos := r.store.Position(label, t.Group.Pair)
		t.Group.NotifySync(r.store.Balances(label), pos, label)
	}

	logrus.Debugf("🔄 resync %s: %d balances, %d positions", label, len(report), len(positions))
	if r.bus != nil {
		r.bus.Publish(events.EventPortfolioSynced, label)
	}
	if r.snapshot != nil {
		r.snapshot.Request()
	}
	return nil
}
