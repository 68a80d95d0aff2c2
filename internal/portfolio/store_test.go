package portfolio

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBalancesClampToZero(t *testing.T) {
	s := NewStore()
	s.AddBalance("paper", "USD", decimal.NewFromInt(100))
	s.AddBalance("paper", "USD", decimal.NewFromInt(-250))

	require.True(t, s.Balance("paper", "USD").IsZero())
}

func TestSetBalancesIsAuthoritative(t *testing.T) {
	s := NewStore()
	s.AddBalance("paper", "USD", decimal.NewFromInt(100))
	s.AddBalance("paper", "BTC", decimal.NewFromInt(2))

	s.SetBalances("paper", map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(50),
	})

	require.True(t, s.Balance("paper", "USD").Equal(decimal.NewFromInt(50)))
	// Currencies absent from the report are gone.
	require.True(t, s.Balance("paper", "BTC").IsZero())
	require.False(t, s.LastSync("paper").IsZero())
}

func TestRecordFillBuildsAndAveragesPosition(t *testing.T) {
	s := NewStore()

	pos := s.RecordFill("paper", "USD_BTC", 100, 2, 3)
	require.Equal(t, PositionLong, pos.Type)
	require.Equal(t, 2.0, pos.Amount)
	require.Equal(t, 100.0, pos.EntryPrice)

	pos = s.RecordFill("paper", "USD_BTC", 200, 2, 3)
	require.Equal(t, 4.0, pos.Amount)
	require.InDelta(t, 150.0, pos.EntryPrice, 1e-9)
}

func TestRecordFillClosesAndRemovesPosition(t *testing.T) {
	s := NewStore()
	s.RecordFill("paper", "USD_BTC", 100, 2, 1)
	pos := s.RecordFill("paper", "USD_BTC", 110, -2, 1)

	require.False(t, pos.IsOpen())
	require.Equal(t, PositionNone, s.Position("paper", "USD_BTC").Type)
	require.Empty(t, s.Positions("paper"))
}

func TestRecordFillFlipsThroughZero(t *testing.T) {
	s := NewStore()
	s.RecordFill("paper", "USD_BTC", 100, 2, 1)
	pos := s.RecordFill("paper", "USD_BTC", 120, -5, 1)

	require.Equal(t, PositionShort, pos.Type)
	require.Equal(t, -3.0, pos.Amount)
	// The flipped remainder opens at the fill rate.
	require.Equal(t, 120.0, pos.EntryPrice)
}

func TestSetPositionOverridesLocal(t *testing.T) {
	s := NewStore()
	s.RecordFill("paper", "USD_BTC", 100, 2, 1)

	s.SetPosition("paper", MarginPosition{Pair: "USD_BTC", Amount: -1, EntryPrice: 95})

	pos := s.Position("paper", "USD_BTC")
	require.Equal(t, PositionShort, pos.Type)
	require.Equal(t, -1.0, pos.Amount)
}

func TestSetPositionClearsWhenFlat(t *testing.T) {
	s := NewStore()
	s.RecordFill("paper", "USD_BTC", 100, 2, 1)

	s.SetPosition("paper", MarginPosition{Pair: "USD_BTC", Amount: 0})
	require.False(t, s.Position("paper", "USD_BTC").IsOpen())
}

func TestPositionReturnsCopy(t *testing.T) {
	s := NewStore()
	s.RecordFill("paper", "USD_BTC", 100, 2, 1)

	pos := s.Position("paper", "USD_BTC")
	pos.Amount = 999

	require.Equal(t, 2.0, s.Position("paper", "USD_BTC").Amount)
}

func TestProfitLossComputedFromTrades(t *testing.T) {
	s := NewStore()
	s.RecordFill("paper", "USD_BTC", 100, 2, 1)

	pos := s.Position("paper", "USD_BTC")
	require.InDelta(t, 20.0, pos.ProfitLossAt(110), 1e-9)
	require.InDelta(t, -20.0, pos.ProfitLossAt(90), 1e-9)
}

func TestSnapshotRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")

	s := NewStore()
	s.AddBalance("paper", "USD", decimal.NewFromInt(5000))
	s.RecordFill("paper", "USD_BTC", 100, 2, 3)

	w := NewSnapshotWriter(s, path)
	w.Request()
	w.Close()

	restored := NewStore()
	require.NoError(t, LoadSnapshot(restored, path))
	require.True(t, restored.Balance("paper", "USD").Equal(decimal.NewFromInt(5000)))

	pos := restored.Position("paper", "USD_BTC")
	require.Equal(t, PositionLong, pos.Type)
	require.Equal(t, 2.0, pos.Amount)
	require.Equal(t, 100.0, pos.EntryPrice)
}

func TestLoadSnapshotMissingFileIsFine(t *testing.T) {
	require.NoError(t, LoadSnapshot(NewStore(), filepath.Join(t.TempDir(), "nope.json")))
}
