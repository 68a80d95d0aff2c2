package trader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"advisor-core/internal/events"
	"advisor-core/pkg/db"
	"advisor-core/pkg/exchange"
)

// trackedOrder is an order resting on an exchange book.
type trackedOrder struct {
	clientID string
	exchange string
	pair     string
	created  time.Time
}

// OpenOrderTracker remembers resting orders and cancels the ones that sit on
// the book for too long without filling.
type OpenOrderTracker struct {
	gateways map[string]exchange.Gateway
	database *db.Database
	bus      *events.Bus

	mu     sync.Mutex
	orders map[string]trackedOrder // exchange order id -> order
}

func NewOpenOrderTracker(gateways map[string]exchange.Gateway, database *db.Database, bus *events.Bus) *OpenOrderTracker {
	return &OpenOrderTracker{
		gateways: gateways,
		database: database,
		bus:      bus,
		orders:   make(map[string]trackedOrder),
	}
}

// Track registers a resting order.
func (o *OpenOrderTracker) Track(exchangeOrderID, clientID, exchangeLabel, pair string) {
	o.mu.Lock()
	o.orders[exchangeOrderID] = trackedOrder{
		clientID: clientID,
		exchange: exchangeLabel,
		pair:     pair,
		created:  time.Now(),
	}
	o.mu.Unlock()
}

// Untrack drops an order, typically after a fill notification.
func (o *OpenOrderTracker) Untrack(exchangeOrderID string) {
	o.mu.Lock()
	delete(o.orders, exchangeOrderID)
	o.mu.Unlock()
}

// Count reports how many orders are being tracked.
func (o *OpenOrderTracker) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.orders)
}

// Sweep cancels every tracked order older than maxAge. Cancel failures keep
// the order tracked for the next sweep.
func (o *OpenOrderTracker) Sweep(ctx context.Context, maxAge time.Duration) {
	o.mu.Lock()
	stale := make(map[string]trackedOrder)
	for id, ord := range o.orders {
		if time.Since(ord.created) >= maxAge {
			stale[id] = ord
		}
	}
	o.mu.Unlock()

	for id, ord := range stale {
		gw, ok := o.gateways[ord.exchange]
		if !ok {
			o.Untrack(id)
			continue
		}
		if err := gw.CancelOrder(ctx, ord.pair, id); err != nil {
			logrus.Errorf("cancelling stale order %s on %s: %v", id, ord.exchange, err)
			continue
		}
		logrus.Infof("🗑️ %s %s: cancelled stale order %s after %s", ord.exchange, ord.pair, id, time.Since(ord.created).Round(time.Second))
		o.Untrack(id)
		if o.database != nil {
			if err := o.database.UpdateOrderStatus(ctx, ord.clientID, string(exchange.StatusCanceled)); err != nil {
				logrus.Errorf("updating cancelled order %s: %v", ord.clientID, err)
			}
		}
		if o.bus != nil {
			o.bus.Publish(events.EventOrderCancelled, ord.pair)
		}
	}
}

// RunSweeper loops Sweep until the context ends.
func (o *OpenOrderTracker) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(ctx, maxAge)
		}
	}
}
