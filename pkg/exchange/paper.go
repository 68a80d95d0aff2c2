package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperConfig tunes the fill simulation.
type PaperConfig struct {
	Label       string
	FeeRate     float64 // decimal, e.g. 0.0004 = 4 bps
	SlippageBps float64 // basis points applied against the taker
	MaxLeverage float64
}

// PaperGateway simulates a venue with immediate market fills. It keeps its
// own balances and margin positions so reconciliation against it behaves
// like a real venue.
type PaperGateway struct {
	cfg PaperConfig
	rng *rand.Rand

	mu        sync.RWMutex
	rates     map[string]float64 // last known rate per pair
	balances  map[string]float64 // currency -> available
	positions map[string]*paperPosition
	open      map[string]OrderRequest // exchangeOrderID -> resting limit orders
}

type paperPosition struct {
	amount     float64 // signed
	entryPrice float64
	leverage   float64
}

func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	if cfg.Label == "" {
		cfg.Label = "paper"
	}
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = 5
	}
	return &PaperGateway{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		rates:     make(map[string]float64),
		balances:  make(map[string]float64),
		positions: make(map[string]*paperPosition),
		open:      make(map[string]OrderRequest),
	}
}

func (p *PaperGateway) Label() string { return p.cfg.Label }

// SetRate updates the simulated market rate for a pair. Feeds call this so
// tickers and market fills track the stream.
func (p *PaperGateway) SetRate(pair string, rate float64) {
	p.mu.Lock()
	p.rates[pair] = rate
	p.mu.Unlock()
}

// Deposit credits a currency balance (test and paper-trading setup).
func (p *PaperGateway) Deposit(currency string, amount float64) {
	p.mu.Lock()
	p.balances[currency] += amount
	p.mu.Unlock()
}

func (p *PaperGateway) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Amount <= 0 {
		return OrderResult{}, fmt.Errorf("paper: order amount must be positive, got %f", req.Amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rate := req.Rate
	if req.Type == OrderTypeMarket || rate <= 0 {
		rate = p.rates[req.Pair]
	}
	if rate <= 0 {
		return OrderResult{}, fmt.Errorf("paper: no market rate for %s", req.Pair)
	}

	id := uuid.NewString()

	// Resting limit orders stay open until cancelled; the core treats them
	// via its open-order sweep.
	if req.Type == OrderTypeLimit && !p.crossesMarket(req, rate) {
		p.open[id] = req
		return OrderResult{ExchangeOrderID: id, ClientID: req.ClientID, Status: StatusOpen}, nil
	}

	// Apply slippage against the taker.
	slip := p.cfg.SlippageBps / 10000.0 * p.rng.Float64()
	if req.Side == SideBuy {
		rate *= 1 + slip
	} else {
		rate *= 1 - slip
	}
	fee := rate * req.Amount * p.cfg.FeeRate

	if req.MarginMode {
		p.fillMargin(req, rate)
	} else {
		if err := p.fillSpot(req, rate, fee); err != nil {
			return OrderResult{}, err
		}
	}

	return OrderResult{
		ExchangeOrderID: id,
		ClientID:        req.ClientID,
		Status:          StatusFilled,
		FilledRate:      rate,
		FilledAmount:    req.Amount,
		Fee:             fee,
		Fills: []Fill{{
			TradeID: uuid.NewString(),
			Rate:    rate,
			Amount:  req.Amount,
			Time:    time.Now(),
		}},
	}, nil
}

func (p *PaperGateway) crossesMarket(req OrderRequest, market float64) bool {
	if req.Side == SideBuy {
		return req.Rate >= market
	}
	return req.Rate <= market
}

func (p *PaperGateway) fillSpot(req OrderRequest, rate, fee float64) error {
	base, quote := splitPair(req.Pair)
	cost := rate * req.Amount
	if req.Side == SideBuy {
		if p.balances[quote] < cost+fee {
			return fmt.Errorf("paper: insufficient %s balance: need %.8f, have %.8f", quote, cost+fee, p.balances[quote])
		}
		p.balances[quote] -= cost + fee
		p.balances[base] += req.Amount
	} else {
		if p.balances[base] < req.Amount {
			return fmt.Errorf("paper: insufficient %s balance: need %.8f, have %.8f", base, req.Amount, p.balances[base])
		}
		p.balances[base] -= req.Amount
		p.balances[quote] += cost - fee
	}
	return nil
}

func (p *PaperGateway) fillMargin(req OrderRequest, rate float64) {
	pos := p.positions[req.Pair]
	if pos == nil {
		pos = &paperPosition{leverage: req.Leverage}
		p.positions[req.Pair] = pos
	}
	signed := req.Amount
	if req.Side == SideSell {
		signed = -signed
	}
	newAmount := pos.amount + signed
	switch {
	case pos.amount == 0 || sameSign(pos.amount, newAmount) && absf(newAmount) > absf(pos.amount):
		// opening or adding: average the entry
		total := pos.entryPrice*absf(pos.amount) + rate*req.Amount
		pos.entryPrice = total / (absf(pos.amount) + req.Amount)
	case newAmount == 0:
		pos.entryPrice = 0
	case !sameSign(pos.amount, newAmount):
		// flipped through zero: the surviving side opened at this fill
		pos.entryPrice = rate
	}
	pos.amount = newAmount
	if pos.amount == 0 {
		delete(p.positions, req.Pair)
	}
}

func (p *PaperGateway) CancelOrder(ctx context.Context, pair, exchangeOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.open[exchangeOrderID]; !ok {
		return fmt.Errorf("paper: unknown order %s", exchangeOrderID)
	}
	delete(p.open, exchangeOrderID)
	return nil
}

func (p *PaperGateway) GetOrderBook(ctx context.Context, pair string) (OrderBook, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rate := p.rates[pair]
	if rate <= 0 {
		return OrderBook{}, fmt.Errorf("paper: no market rate for %s", pair)
	}
	// Synthetic one-level book around the last rate.
	return OrderBook{
		Pair: pair,
		Bids: []OrderBookEntry{{Rate: rate * 0.9995, Amount: 10}},
		Asks: []OrderBookEntry{{Rate: rate * 1.0005, Amount: 10}},
	}, nil
}

func (p *PaperGateway) GetTicker(ctx context.Context, pair string) (Ticker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rate := p.rates[pair]
	if rate <= 0 {
		return Ticker{}, fmt.Errorf("paper: no market rate for %s", pair)
	}
	return Ticker{Pair: pair, Last: rate, Bid: rate * 0.9995, Ask: rate * 1.0005, Time: time.Now()}, nil
}

func (p *PaperGateway) GetMaxLeverage(pair string) float64 { return p.cfg.MaxLeverage }

func (p *PaperGateway) GetBalances(ctx context.Context) ([]Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Balance, 0, len(p.balances))
	for cur, amt := range p.balances {
		out = append(out, Balance{Currency: cur, Available: amt})
	}
	return out, nil
}

func (p *PaperGateway) GetMarginPositions(ctx context.Context) ([]MarginPositionInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]MarginPositionInfo, 0, len(p.positions))
	for pair, pos := range p.positions {
		pl := 0.0
		if rate := p.rates[pair]; rate > 0 && pos.entryPrice > 0 {
			pl = (rate - pos.entryPrice) * pos.amount
		}
		out = append(out, MarginPositionInfo{
			Pair:       pair,
			Amount:     pos.amount,
			EntryPrice: pos.entryPrice,
			Leverage:   pos.leverage,
			ProfitLoss: pl,
		})
	}
	return out, nil
}

// OpenOrderCount reports resting limit orders (used by tests and the sweep).
func (p *PaperGateway) OpenOrderCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.open)
}

func splitPair(pair string) (base, quote string) {
	parts := strings.SplitN(pair, "_", 2)
	if len(parts) == 2 {
		// pairs are written QUOTE_BASE, e.g. USD_BTC
		return parts[1], parts[0]
	}
	return pair, pair
}

func sameSign(a, b float64) bool { return (a > 0 && b > 0) || (a < 0 && b < 0) }

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
