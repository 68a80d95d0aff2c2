package strategy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// InstanceConfig is one strategy entry in the trading config file.
type InstanceConfig struct {
	Class           string         `yaml:"class"`
	Pair            string         `yaml:"pair"`
	Exchange        string         `yaml:"exchange"`    // empty = all configured exchanges
	CandleSizeMin   int            `yaml:"candleSize"`  // minutes; 0 = trade ticks only
	Main            bool           `yaml:"main"`
	TradeOnce       bool           `yaml:"tradeOnce"`
	FallbackOnly    bool           `yaml:"fallbackOnly"`
	CanOpenOpposite bool           `yaml:"canOpenOppositePositions"`
	Weight          float64        `yaml:"weight"`
	DelegateTo      string         `yaml:"delegateTo"` // class name of the trade-execution strategy
	Params          map[string]any `yaml:"params"`
}

// GroupConfig is one strategy-group entry: a set of strategies trading the
// same pair under shared execution settings.
type GroupConfig struct {
	ConfigNr               int              `yaml:"configNr"`
	Exchanges              []string         `yaml:"exchanges"`
	MarginTrading          bool             `yaml:"marginTrading"`
	TradeTotalBase         float64          `yaml:"tradeTotalBase"` // base order size in quote currency
	Leverage               float64          `yaml:"leverage"`
	FlipPosition           bool             `yaml:"flipPosition"`
	MaxClosePartialPercent float64          `yaml:"maxClosePartialPercent"`
	MainStrategyAlways     bool             `yaml:"mainStrategyAlwaysTrades"`
	Arbitrage              bool             `yaml:"arbitrage"`
	MaxTradeBalancePercent float64          `yaml:"maxTradeBalancePercent"`
	TradeDirection         string           `yaml:"tradeDirection"` // "", "up", "down"
	Strategies             []InstanceConfig `yaml:"strategies"`
}

// ConfigFile is the top-level trading config.
type ConfigFile struct {
	Groups []GroupConfig `yaml:"groups"`
}

// LoadConfig reads and validates the trading config file. Invalid
// configuration is fatal at startup per the error-handling policy.
func LoadConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trading config: %w", err)
	}
	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse trading config: %w", err)
	}
	for i := range file.Groups {
		g := &file.Groups[i]
		if len(g.Exchanges) == 0 {
			return nil, fmt.Errorf("group %d: no exchange configured", g.ConfigNr)
		}
		if g.TradeTotalBase <= 0 {
			return nil, fmt.Errorf("group %d: tradeTotalBase must be positive", g.ConfigNr)
		}
		if g.Leverage <= 0 {
			g.Leverage = 1
		}
		if g.MaxClosePartialPercent <= 0 || g.MaxClosePartialPercent > 100 {
			g.MaxClosePartialPercent = 100
		}
		mains := 0
		for _, s := range g.Strategies {
			if s.Class == "" || s.Pair == "" {
				return nil, fmt.Errorf("group %d: strategy entry missing class or pair", g.ConfigNr)
			}
			if s.Main {
				mains++
			}
		}
		if mains > 1 {
			return nil, fmt.Errorf("group %d: more than one main strategy", g.ConfigNr)
		}
	}
	return &file, nil
}

// factory builds a concrete strategy around a prepared Base.
type factory func(base *Base, params map[string]any) (Strategy, error)

var registry = map[string]factory{
	"ema_cross":   newEMACross,
	"rsi":         newRSI,
	"stop_loss":   newStopLoss,
	"take_profit": newTakeProfit,
}

// New instantiates a strategy from its config entry. Unknown classes are a
// configuration error (fatal at startup).
func New(cfg InstanceConfig) (Strategy, error) {
	build, ok := registry[cfg.Class]
	if !ok {
		return nil, fmt.Errorf("unknown strategy class %q", cfg.Class)
	}
	base := NewBase(BaseConfig{
		Name:            cfg.Class,
		Pair:            cfg.Pair,
		Exchange:        cfg.Exchange,
		CandleSize:      time.Duration(cfg.CandleSizeMin) * time.Minute,
		Main:            cfg.Main,
		TradeOnce:       cfg.TradeOnce,
		FallbackOnly:    cfg.FallbackOnly,
		CanOpenOpposite: cfg.CanOpenOpposite,
		StopOrTake:      cfg.Class == "stop_loss" || cfg.Class == "take_profit",
		DefaultWeight:   cfg.Weight,
	})
	return build(base, cfg.Params)
}

// Delegate routes src's signals through dst. The delegated signal keeps
// src's weight, reason and exchange but is emitted by dst, so dst's position
// bookkeeping owns the trade.
func Delegate(src, dst Strategy) error {
	s, ok := src.(interface{ core() *Base })
	if !ok {
		return fmt.Errorf("strategy %s cannot delegate", src.Name())
	}
	d, ok := dst.(interface{ core() *Base })
	if !ok {
		return fmt.Errorf("strategy %s cannot receive delegation", dst.Name())
	}
	s.core().SetDelegate(d.core())
	return nil
}

// decodeParams maps a raw params block onto a typed struct.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(params)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
