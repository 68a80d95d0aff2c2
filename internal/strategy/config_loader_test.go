package strategy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
groups:
  - configNr: 1
    exchanges: [paper]
    marginTrading: true
    tradeTotalBase: 500
    leverage: 3
    flipPosition: true
    maxClosePartialPercent: 50
    strategies:
      - class: ema_cross
        pair: USD_BTC
        candleSize: 15
        main: true
        params:
          fast: 9
          slow: 21
      - class: stop_loss
        pair: USD_BTC
        params:
          stop: 4
          time: 30
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trading.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigParsesGroups(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Len(t, cfg.Groups, 1)

	g := cfg.Groups[0]
	require.Equal(t, 1, g.ConfigNr)
	require.True(t, g.MarginTrading)
	require.Equal(t, 500.0, g.TradeTotalBase)
	require.Equal(t, 3.0, g.Leverage)
	require.Equal(t, 50.0, g.MaxClosePartialPercent)
	require.Len(t, g.Strategies, 2)
	require.True(t, g.Strategies[0].Main)
	require.Equal(t, 15, g.Strategies[0].CandleSizeMin)
}

func TestLoadConfigRejectsMissingExchange(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
groups:
  - configNr: 2
    tradeTotalBase: 100
    strategies:
      - {class: rsi, pair: USD_ETH}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no exchange")
}

func TestLoadConfigRejectsTwoMains(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
groups:
  - configNr: 3
    exchanges: [paper]
    tradeTotalBase: 100
    strategies:
      - {class: rsi, pair: USD_ETH, main: true}
      - {class: ema_cross, pair: USD_ETH, main: true}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "main strategy")
}

func TestNewRejectsUnknownClass(t *testing.T) {
	_, err := New(InstanceConfig{Class: "martingale", Pair: "USD_BTC"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown strategy class")
}

func TestNewBuildsConfiguredStrategy(t *testing.T) {
	s, err := New(InstanceConfig{
		Class:         "ema_cross",
		Pair:          "USD_BTC",
		CandleSizeMin: 15,
		Main:          true,
		Weight:        80,
		Params:        map[string]any{"fast": 5, "slow": 13},
	})
	require.NoError(t, err)
	require.Equal(t, "ema_cross", s.Name())
	require.Equal(t, 15*time.Minute, s.CandleSize())
	require.True(t, s.IsMain())
	require.False(t, s.IsStopOrTake())

	cross, ok := s.(*EMACross)
	require.True(t, ok)
	require.Equal(t, 5, cross.fastPeriod)
	require.Equal(t, 13, cross.slowPeriod)
}

func TestStopAndTakeClassesFlagged(t *testing.T) {
	for _, class := range []string{"stop_loss", "take_profit"} {
		s, err := New(InstanceConfig{Class: class, Pair: "USD_BTC"})
		require.NoError(t, err)
		require.True(t, s.IsStopOrTake(), class)
	}
}
