package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Notification is a human-facing alert.
type Notification struct {
	Title    string
	Message  string
	Exchange string
	Kind     string // e.g. "api_error", "position_stuck", "account_expired"
}

// Notifier delivers notifications. Delivery is fire-and-forget; the core
// never depends on success.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the process log. The default sink.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, n Notification) error {
	logrus.Warnf("🔔 %s [%s/%s]: %s", n.Title, n.Exchange, n.Kind, n.Message)
	return nil
}

// Deduper wraps a Notifier and suppresses repeats of the same
// (exchange, kind) for the lifetime of the process. API error alerts fire
// once per exchange, not once per failing request.
type Deduper struct {
	next Notifier
	mu   sync.Mutex
	seen map[string]bool
}

func NewDeduper(next Notifier) *Deduper {
	return &Deduper{next: next, seen: make(map[string]bool)}
}

func (d *Deduper) Send(ctx context.Context, n Notification) error {
	key := n.Exchange + "|" + n.Kind
	d.mu.Lock()
	if d.seen[key] {
		d.mu.Unlock()
		return nil
	}
	d.seen[key] = true
	d.mu.Unlock()
	return d.next.Send(ctx, n)
}
