package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store holds process-wide portfolio truth: coin balances and margin
// positions per exchange. One Store is created at startup and passed by
// reference to every trader instance, so two independently configured
// strategies on the same exchange see the same ground truth.
//
// Only the trader layer mutates the store; strategies read snapshots.
type Store struct {
	mu        sync.RWMutex
	balances  map[string]map[string]decimal.Decimal // exchange -> currency -> available
	positions map[string]map[string]*MarginPosition // exchange -> pair -> position
	lastSync  map[string]time.Time                  // exchange -> last authoritative sync
}

// NewStore creates an empty portfolio store.
func NewStore() *Store {
	return &Store{
		balances:  make(map[string]map[string]decimal.Decimal),
		positions: make(map[string]map[string]*MarginPosition),
		lastSync:  make(map[string]time.Time),
	}
}

// Balance returns the available amount of a currency on an exchange.
func (s *Store) Balance(exchange, currency string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[exchange][currency]
}

// Balances returns a snapshot of all balances on an exchange.
func (s *Store) Balances(exchange string) map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.balances[exchange]))
	for cur, amt := range s.balances[exchange] {
		out[cur] = amt
	}
	return out
}

// AddBalance adjusts a currency balance by delta. Balances never go
// negative; updates are clamped to zero.
func (s *Store) AddBalance(exchange, currency string, delta decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[exchange] == nil {
		s.balances[exchange] = make(map[string]decimal.Decimal)
	}
	next := s.balances[exchange][currency].Add(delta)
	if next.IsNegative() {
		logrus.Warnf("portfolio: clamping %s %s balance to 0 (was going to %s)", exchange, currency, next.String())
		next = decimal.Zero
	}
	s.balances[exchange][currency] = next
}

// SetBalances replaces all balances on an exchange with an authoritative
// report. Used by the resync path; the exchange always wins.
func (s *Store) SetBalances(exchange string, balances map[string]decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clean := make(map[string]decimal.Decimal, len(balances))
	for cur, amt := range balances {
		if amt.IsNegative() {
			amt = decimal.Zero
		}
		clean[cur] = amt
	}
	s.balances[exchange] = clean
	s.lastSync[exchange] = time.Now()
}

// Position returns a copy of the margin position for exchange+pair, or a
// zero-value position with type none.
func (s *Store) Position(exchange, pair string) MarginPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.positions[exchange][pair]; p != nil {
		cp := *p
		cp.Trades = append([]PositionTrade(nil), p.Trades...)
		return cp
	}
	return MarginPosition{Pair: pair, Type: PositionNone}
}

// Positions returns copies of all open positions on an exchange.
func (s *Store) Positions(exchange string) []MarginPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MarginPosition, 0, len(s.positions[exchange]))
	for _, p := range s.positions[exchange] {
		cp := *p
		cp.Trades = append([]PositionTrade(nil), p.Trades...)
		out = append(out, cp)
	}
	return out
}

// RecordFill folds a confirmed fill into the margin position and returns the
// updated copy. signedAmount is positive for buys, negative for sells.
func (s *Store) RecordFill(exchange, pair string, rate, signedAmount, leverage float64) MarginPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions[exchange] == nil {
		s.positions[exchange] = make(map[string]*MarginPosition)
	}
	p := s.positions[exchange][pair]
	if p == nil {
		p = &MarginPosition{Pair: pair, Leverage: leverage, Type: PositionNone}
		s.positions[exchange][pair] = p
	}
	p.applyFill(rate, signedAmount, time.Now())
	if !p.IsOpen() {
		delete(s.positions[exchange], pair)
	}
	return *p
}

// SetPosition overwrites a position from an authoritative exchange report.
func (s *Store) SetPosition(exchange string, pos MarginPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos.Type = TypeFromAmount(pos.Amount)
	if s.positions[exchange] == nil {
		s.positions[exchange] = make(map[string]*MarginPosition)
	}
	if !pos.IsOpen() {
		delete(s.positions[exchange], pos.Pair)
		return
	}
	s.positions[exchange][pos.Pair] = &pos
}

// MarkSynced records the time of the last authoritative sync.
func (s *Store) MarkSynced(exchange string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[exchange] = time.Now()
}

// LastSync reports when an exchange was last reconciled.
func (s *Store) LastSync(exchange string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync[exchange]
}
