package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// snapshot is the on-disk shape of the paper-trading portfolio.
type snapshot struct {
	Balances  map[string]map[string]decimal.Decimal `json:"balances"`
	Positions map[string][]MarginPosition           `json:"positions"`
}

// SnapshotWriter persists the paper-trading portfolio to a JSON file after
// every simulated fill. Writes are funneled through a single goroutine so
// two fills can never interleave partial file contents.
type SnapshotWriter struct {
	store *Store
	path  string

	queue chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewSnapshotWriter starts the background writer.
func NewSnapshotWriter(store *Store, path string) *SnapshotWriter {
	w := &SnapshotWriter{
		store: store,
		path:  path,
		queue: make(chan struct{}, 64),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Request schedules a snapshot write. Coalesces with pending requests.
func (w *SnapshotWriter) Request() {
	select {
	case w.queue <- struct{}{}:
	default:
		// a write is already queued; it will pick up the latest state
	}
}

// Close flushes a final snapshot and stops the writer.
func (w *SnapshotWriter) Close() {
	w.once.Do(func() { close(w.queue) })
	<-w.done
}

func (w *SnapshotWriter) run() {
	defer close(w.done)
	for range w.queue {
		if err := w.write(); err != nil {
			logrus.Errorf("portfolio: snapshot write failed: %v", err)
		}
	}
	// final flush on close
	if err := w.write(); err != nil {
		logrus.Errorf("portfolio: final snapshot write failed: %v", err)
	}
}

func (w *SnapshotWriter) write() error {
	w.store.mu.RLock()
	snap := snapshot{
		Balances:  make(map[string]map[string]decimal.Decimal, len(w.store.balances)),
		Positions: make(map[string][]MarginPosition, len(w.store.positions)),
	}
	for ex, bals := range w.store.balances {
		m := make(map[string]decimal.Decimal, len(bals))
		for cur, amt := range bals {
			m[cur] = amt
		}
		snap.Balances[ex] = m
	}
	for ex, poss := range w.store.positions {
		for _, p := range poss {
			cp := *p
			cp.Trades = append([]PositionTrade(nil), p.Trades...)
			snap.Positions[ex] = append(snap.Positions[ex], cp)
		}
	}
	w.store.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// LoadSnapshot restores a previously persisted paper-trading portfolio into
// the store. A missing file is not an error; the portfolio starts empty.
func LoadSnapshot(store *Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	for ex, bals := range snap.Balances {
		store.SetBalances(ex, bals)
	}
	for ex, poss := range snap.Positions {
		for _, p := range poss {
			store.SetPosition(ex, p)
		}
	}
	logrus.Infof("portfolio: restored snapshot from %s", path)
	return nil
}
