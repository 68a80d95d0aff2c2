package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the advisor core. Trading
// behavior itself lives in the YAML strategy config; the environment only
// controls process-level wiring.
type Config struct {
	Port string

	// Strategy configuration
	TradingConfigPath string

	// Market data
	UseMockFeed     bool
	StreamHost      string
	MockStartRate   float64
	MockVolatility  float64
	MockTickSeconds int

	// Paper trading
	PaperTrading       bool
	PaperInitialQuote  float64 // starting quote-currency balance per exchange
	PaperFeeRate       float64 // decimal (e.g. 0.0004 = 4 bps)
	PaperSlippageBps   float64
	PaperMaxLeverage   float64
	PaperSnapshotPath  string

	// Live trading credentials
	APIKey    string
	APISecret string

	// Persistence
	DBPath string

	// Scheduling
	ResyncInterval    time.Duration
	StateSaveInterval time.Duration
	OrderSweepMaxAge  time.Duration

	// Operational API
	JWTSecret string

	// Logging
	LogLevel string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		TradingConfigPath: getEnv("TRADING_CONFIG", "./config/trading.yaml"),
		UseMockFeed:       getEnv("USE_MOCK_FEED", "true") == "true",
		StreamHost:        getEnv("STREAM_HOST", "stream.binance.com:9443"),
		MockStartRate:     getEnvFloat("MOCK_START_RATE", 100.0),
		MockVolatility:    getEnvFloat("MOCK_VOLATILITY", 0.001),
		MockTickSeconds:   getEnvInt("MOCK_TICK_SECONDS", 1),
		PaperTrading:      getEnv("PAPER_TRADING", "true") == "true",
		PaperInitialQuote: getEnvFloat("PAPER_INITIAL_QUOTE", 10000.0),
		PaperFeeRate:      getEnvFloat("PAPER_FEE_RATE", 0.0004),
		PaperSlippageBps:  getEnvFloat("PAPER_SLIPPAGE_BPS", 2),
		PaperMaxLeverage:  getEnvFloat("PAPER_MAX_LEVERAGE", 10),
		PaperSnapshotPath: getEnv("PAPER_SNAPSHOT_PATH", "./data/portfolio.json"),
		APIKey:            os.Getenv("EXCHANGE_API_KEY"),
		APISecret:         os.Getenv("EXCHANGE_API_SECRET"),
		DBPath:            getEnv("DB_PATH", "./data/advisor.db"),
		ResyncInterval:    time.Duration(getEnvInt("RESYNC_INTERVAL_SECONDS", 60)) * time.Second,
		StateSaveInterval: time.Duration(getEnvInt("STATE_SAVE_INTERVAL_SECONDS", 60)) * time.Second,
		OrderSweepMaxAge:  time.Duration(getEnvInt("ORDER_SWEEP_MAX_AGE_SECONDS", 300)) * time.Second,
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
