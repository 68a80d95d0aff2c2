package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"advisor-core/internal/advisor"
	"advisor-core/internal/api"
	"advisor-core/internal/events"
	"advisor-core/internal/market"
	"advisor-core/internal/notify"
	"advisor-core/internal/portfolio"
	"advisor-core/internal/strategy"
	"advisor-core/internal/trader"
	"advisor-core/pkg/config"
	"advisor-core/pkg/db"
	"advisor-core/pkg/exchange"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}
	setupLogging(cfg.LogLevel)
	logrus.Infof("🚀 advisor core %s starting", version)

	tradingCfg, err := strategy.LoadConfig(cfg.TradingConfigPath)
	if err != nil {
		logrus.Fatalf("loading trading config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logrus.Fatalf("opening database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		logrus.Fatalf("applying migrations: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()
	store := portfolio.NewStore()
	notifier := notify.NewDeduper(notify.LogNotifier{})

	var snapshot *portfolio.SnapshotWriter
	if cfg.PaperTrading {
		if err := portfolio.LoadSnapshot(store, cfg.PaperSnapshotPath); err != nil {
			logrus.Warnf("loading portfolio snapshot: %v", err)
		}
		snapshot = portfolio.NewSnapshotWriter(store, cfg.PaperSnapshotPath)
	}

	labels := exchangeLabels(tradingCfg)
	gateways, paperGWs := buildGateways(cfg, tradingCfg, store, labels)

	coord := advisor.New(database, bus)
	for _, g := range tradingCfg.Groups {
		if err := coord.AddGroup(g, gateways, store, notifier, snapshot); err != nil {
			logrus.Fatalf("wiring strategy group %d: %v", g.ConfigNr, err)
		}
	}

	// The exchange view is authoritative: pull it once before strategies are
	// restored so nobody acts on stale local state.
	resync := trader.NewResyncer(store, gateways, coord.SyncTargets(), bus, notifier, snapshot, cfg.ResyncInterval)
	resync.SyncOnce(ctx)
	coord.RestoreStates(ctx)

	go resync.Run(ctx)
	go coord.RunStateSaver(ctx, cfg.StateSaveInterval)
	for _, tr := range coord.Traders() {
		go tr.OpenOrders().RunSweeper(ctx, time.Minute, cfg.OrderSweepMaxAge)
	}

	var sink market.TickSink = coord
	if len(paperGWs) > 0 {
		sink = &paperRateSink{TickSink: coord, gateways: paperGWs}
	}
	builder := market.NewCandleBuilder(sink, candleSizes(tradingCfg)...)
	startFeeds(ctx, cfg, tradingCfg, labels, sink, builder)

	server := api.NewServer(bus, database, coord, store, labels, api.SystemMeta{
		PaperTrading: cfg.PaperTrading,
		UseMockFeed:  cfg.UseMockFeed,
		Version:      version,
	}, cfg.JWTSecret)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			logrus.Errorf("api server: %v", err)
		}
	}()
	logrus.Infof("🌐 operational API on :%s", cfg.Port)

	<-ctx.Done()
	logrus.Info("🛑 shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = server.Shutdown(shutdownCtx)
	coord.Close()
	coord.SaveStates(shutdownCtx)
	if snapshot != nil {
		snapshot.Close()
	}
	logrus.Info("👋 shutdown complete")
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// exchangeLabels collects every exchange named by any group, sorted for
// stable logging.
func exchangeLabels(cfg *strategy.ConfigFile) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range cfg.Groups {
		for _, label := range g.Exchanges {
			if !seen[label] {
				seen[label] = true
				out = append(out, label)
			}
		}
	}
	sort.Strings(out)
	return out
}

// buildGateways creates one gateway per configured exchange label. Paper
// mode simulates every venue locally; live mode signs against the real API.
func buildGateways(cfg *config.Config, tradingCfg *strategy.ConfigFile,
	store *portfolio.Store, labels []string) (map[string]exchange.Gateway, []*exchange.PaperGateway) {

	gateways := make(map[string]exchange.Gateway, len(labels))
	var paperGWs []*exchange.PaperGateway

	for _, label := range labels {
		if cfg.PaperTrading {
			gw := exchange.NewPaperGateway(exchange.PaperConfig{
				Label:       label,
				FeeRate:     cfg.PaperFeeRate,
				SlippageBps: cfg.PaperSlippageBps,
				MaxLeverage: cfg.PaperMaxLeverage,
			})
			seedPaperGateway(gw, store, tradingCfg, label, cfg.PaperInitialQuote)
			gateways[label] = gw
			paperGWs = append(paperGWs, gw)
			continue
		}
		gateways[label] = exchange.NewRestGateway(exchange.RestConfig{
			Label:       label,
			BaseURL:     "https://api.binance.com",
			APIKey:      cfg.APIKey,
			APISecret:   cfg.APISecret,
			Symbols:     symbolMap(tradingCfg),
			MaxLeverage: cfg.PaperMaxLeverage,
		})
	}
	return gateways, paperGWs
}

// seedPaperGateway funds the simulated venue: restored snapshot balances
// when available, otherwise the configured starting quote per traded pair.
func seedPaperGateway(gw *exchange.PaperGateway, store *portfolio.Store,
	tradingCfg *strategy.ConfigFile, label string, initialQuote float64) {

	if balances := store.Balances(label); len(balances) > 0 {
		for currency, amount := range balances {
			v, _ := amount.Float64()
			gw.Deposit(currency, v)
		}
		return
	}
	seeded := make(map[string]bool)
	for _, pair := range tradedPairs(tradingCfg) {
		quote := strings.SplitN(pair, "_", 2)[0]
		if !seeded[quote] {
			seeded[quote] = true
			gw.Deposit(quote, initialQuote)
		}
	}
}

// tradedPairs lists every distinct pair across all groups.
func tradedPairs(cfg *strategy.ConfigFile) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range cfg.Groups {
		for _, s := range g.Strategies {
			if !seen[s.Pair] {
				seen[s.Pair] = true
				out = append(out, s.Pair)
			}
		}
	}
	sort.Strings(out)
	return out
}

// candleSizes lists every distinct candle size any strategy subscribes to.
func candleSizes(cfg *strategy.ConfigFile) []time.Duration {
	seen := make(map[time.Duration]bool)
	var out []time.Duration
	for _, g := range cfg.Groups {
		for _, s := range g.Strategies {
			size := time.Duration(s.CandleSizeMin) * time.Minute
			if size > 0 && !seen[size] {
				seen[size] = true
				out = append(out, size)
			}
		}
	}
	return out
}

// symbolMap derives venue symbols from internal pairs. Pairs are written
// QUOTE_BASE; the venue wants BASEQUOTE with USD quoted as USDT.
func symbolMap(cfg *strategy.ConfigFile) map[string]string {
	out := make(map[string]string)
	for _, pair := range tradedPairs(cfg) {
		parts := strings.SplitN(pair, "_", 2)
		if len(parts) != 2 {
			continue
		}
		quote, base := parts[0], parts[1]
		if quote == "USD" {
			quote = "USDT"
		}
		out[pair] = base + quote
	}
	return out
}

// startFeeds launches one market data feed per traded pair.
func startFeeds(ctx context.Context, cfg *config.Config, tradingCfg *strategy.ConfigFile,
	labels []string, sink market.TickSink, builder *market.CandleBuilder) {

	label := ""
	if len(labels) > 0 {
		label = labels[0]
	}
	symbols := symbolMap(tradingCfg)
	for _, pair := range tradedPairs(tradingCfg) {
		if cfg.UseMockFeed {
			feed := market.NewMockFeed(market.MockFeedConfig{
				Pair:       pair,
				Exchange:   label,
				StartRate:  cfg.MockStartRate,
				Volatility: cfg.MockVolatility,
				Interval:   time.Duration(cfg.MockTickSeconds) * time.Second,
			}, sink, builder)
			go feed.Run(ctx)
			continue
		}
		feed := market.NewStreamFeed(market.StreamConfig{
			Host:     cfg.StreamHost,
			Symbol:   symbols[pair],
			Pair:     pair,
			Exchange: label,
		}, sink, builder)
		go feed.Run(ctx)
	}
}

// paperRateSink keeps simulated venues marked to market while passing ticks
// through to the coordinator.
type paperRateSink struct {
	market.TickSink
	gateways []*exchange.PaperGateway
}

func (s *paperRateSink) SendTick(pair string, trades []market.Trade) {
	if rate := market.VWAP(trades); rate > 0 {
		for _, gw := range s.gateways {
			gw.SetRate(pair, rate)
		}
	}
	s.TickSink.SendTick(pair, trades)
}
