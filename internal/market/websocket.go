package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StreamConfig describes one live trade stream subscription.
type StreamConfig struct {
	Host     string // e.g. "stream.binance.com:9443"
	Symbol   string // venue symbol, e.g. "BTCUSDT"
	Pair     string // internal pair, e.g. "USD_BTC"
	Exchange string // gateway label the trades are attributed to
	// BatchWindow collects trades before pushing a tick batch downstream.
	BatchWindow time.Duration
}

// StreamFeed consumes a public trade websocket and turns the raw messages
// into batched ticks and candles.
type StreamFeed struct {
	cfg     StreamConfig
	sink    TickSink
	builder *CandleBuilder
	dialer  *websocket.Dialer
}

// NewStreamFeed creates a live feed. builder may be nil to skip candles.
func NewStreamFeed(cfg StreamConfig, sink TickSink, builder *CandleBuilder) *StreamFeed {
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = time.Second
	}
	return &StreamFeed{
		cfg:     cfg,
		sink:    sink,
		builder: builder,
		dialer:  websocket.DefaultDialer,
	}
}

// Run keeps the stream alive until ctx ends, reconnecting with backoff on
// read failures.
func (f *StreamFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := f.stream(ctx)
		if ctx.Err() != nil {
			if f.builder != nil {
				f.builder.Flush()
			}
			return
		}
		logrus.Warnf("⚠️ %s stream for %s dropped: %v, reconnecting in %s", f.cfg.Exchange, f.cfg.Symbol, err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// stream runs one connection: a reader goroutine parses trades into a
// channel while the main loop batches them on the flush interval.
func (f *StreamFeed) stream(ctx context.Context) error {
	// Lowercase symbols are required on the websocket path.
	name := fmt.Sprintf("%s@trade", strings.ToLower(f.cfg.Symbol))
	u := url.URL{Scheme: "wss", Host: f.cfg.Host, Path: "/ws/" + name}

	conn, _, err := f.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial trade stream: %w", err)
	}
	defer conn.Close()
	logrus.Infof("📡 connected to %s trade stream for %s", f.cfg.Exchange, f.cfg.Symbol)

	trades := make(chan Trade, 256)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			trade, err := f.parseTrade(msg)
			if err != nil {
				logrus.Debugf("skipping unparseable trade message: %v", err)
				continue
			}
			select {
			case trades <- trade:
			default:
				logrus.Warnf("⚠️ %s %s: trade buffer full, dropping", f.cfg.Exchange, f.cfg.Symbol)
			}
		}
	}()

	ticker := time.NewTicker(f.cfg.BatchWindow)
	defer ticker.Stop()
	var batch []Trade

	flush := func() {
		if len(batch) == 0 {
			return
		}
		f.sink.SendTick(f.cfg.Pair, batch)
		if f.builder != nil {
			f.builder.AddTrades(f.cfg.Pair, batch)
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			flush()
			return ctx.Err()
		case err := <-readErr:
			flush()
			return fmt.Errorf("read trade stream: %w", err)
		case t := <-trades:
			batch = append(batch, t)
		case <-ticker.C:
			flush()
		}
	}
}

// parseTrade decodes only the fields we need from the venue trade event.
func (f *StreamFeed) parseTrade(msg []byte) (Trade, error) {
	var raw struct {
		Price     string `json:"p"`
		Qty       string `json:"q"`
		TradeTime int64  `json:"T"` // milliseconds
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Trade{}, err
	}
	rate, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return Trade{}, fmt.Errorf("bad price %q", raw.Price)
	}
	amount, err := strconv.ParseFloat(raw.Qty, 64)
	if err != nil {
		return Trade{}, fmt.Errorf("bad quantity %q", raw.Qty)
	}
	return Trade{
		Pair:     f.cfg.Pair,
		Exchange: f.cfg.Exchange,
		Rate:     rate,
		Amount:   amount,
		Time:     time.UnixMilli(raw.TradeTime),
	}, nil
}
