package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridtrader/market"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	open := time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)
	close := time.Date(2024, 3, 15, 14, 20, 30, 0, time.UTC)

	trade := TradeRecord{
		TradeID:    "trade-12345678-abcd",
		Instrument: "EUR_USD",
		Side:       market.Long,
		Layers:     3,
		Volume:     7000,
		EntryPrice: 1.08500,
		ExitPrice:  1.08750,
		OpenTime:   open,
		CloseTime:  close,
		RealizedPL: 250.00,
		Reason:     "breakeven lock",
	}

	result := FormatTradeOrg(trade)

	assert.Contains(t, result, "** Trade: EUR_USD long (trade-12)")
	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":TRADE_ID: trade-12345678-abcd")
	assert.Contains(t, result, ":SIDE: long")
	assert.Contains(t, result, ":LAYERS: 3")
	assert.Contains(t, result, ":VOLUME: 7000")
	assert.Contains(t, result, ":ENTRY_PRICE: 1.08500")
	assert.Contains(t, result, ":EXIT_PRICE: 1.08750")
	assert.Contains(t, result, ":OPEN_TIME: 2024-03-15T10:30:45Z")
	assert.Contains(t, result, ":CLOSE_TIME: 2024-03-15T14:20:30Z")
	assert.Contains(t, result, ":REALIZED_PL: 250.00")
	assert.Contains(t, result, ":REASON: breakeven lock")
	assert.Contains(t, result, ":END:")

	assert.Contains(t, result, "*** Thesis")
	assert.Contains(t, result, "*** Execution")
	assert.Contains(t, result, "*** Review")
}

func TestFormatCyclesTableOrg(t *testing.T) {
	t.Parallel()

	closed := time.Date(2024, 3, 15, 14, 20, 30, 0, time.UTC)
	trades := []TradeRecord{
		{TradeID: "01HXAAAA0001", Side: market.Long, Layers: 3, Volume: 7, EntryPrice: 94.5, ExitPrice: 98, CloseTime: closed, RealizedPL: 24.5, Reason: "stop"},
		{TradeID: "01HXBBBB0002", Side: market.Short, Layers: 1, Volume: 1, EntryPrice: 100, ExitPrice: 102, CloseTime: closed.Add(time.Hour), RealizedPL: -2, Reason: "close"},
	}

	out := FormatCyclesTableOrg(trades)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "| 01HXAAAA | long | 3 | 7 | 94.50000 | 98.00000 | 14:20:30 | 24.50 | stop |", lines[2])
	assert.Equal(t, "| 01HXBBBB | short | 1 | 1 | 100.00000 | 102.00000 | 15:20:30 | -2.00 | close |", lines[3])
	assert.Equal(t, "| total | 2 cycles | | | | | | 22.50 | |", lines[5])

	empty := FormatCyclesTableOrg(nil)
	assert.Contains(t, empty, "| total | 0 cycles | | | | | | 0.00 | |")
}

func TestFormatTradesOrg(t *testing.T) {
	t.Parallel()

	trades := []TradeRecord{
		{TradeID: "trade-001", Instrument: "EUR_USD", Side: market.Long, RealizedPL: 200},
		{TradeID: "trade-002", Instrument: "GBP_USD", Side: market.Short, RealizedPL: -100},
	}

	result := FormatTradesOrg(trades)

	assert.Contains(t, result, "trade-001")
	assert.Contains(t, result, "trade-002")
	assert.Contains(t, result, ":REALIZED_PL: -100.00")

	parts := strings.Split(result, "\n\n\n")
	assert.Len(t, parts, 2, "Expected two trades separated by blank lines")

	assert.Empty(t, FormatTradesOrg(nil))
	assert.NotContains(t, FormatTradesOrg(trades[:1]), "\n\n\n")
}

func TestShortID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"long ID gets truncated", "trade-12345678-abcdef", "trade-12"},
		{"exactly eight", "12345678", "12345678"},
		{"short ID kept", "short", "short"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, shortID(tt.input))
		})
	}
}

func TestBacktestRunOrg(t *testing.T) {
	t.Parallel()

	run := BacktestRun{
		RunID:            "01J0TEST",
		Instrument:       "EUR_USD",
		Timeframe:        "H1",
		Start:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		MaxLayers:        4,
		VolumeMultiplier: 2,
		PriceGap:         0.0025,
		TrailingModes:    "fixed",
		Trades:           4,
		Wins:             3,
		Losses:           1,
		WinRate:          0.75,
		StartBalance:     10000,
		EndBalance:       10250,
		NetPL:            250,
		ReturnPct:        2.5,
		Config:           []byte("grid:\n  max_layers: 4\n"),
		OrgPath:          filepath.Join(t.TempDir(), "run.org"),
		Notes:            []string{"deep cycle in week 2"},
	}

	require.NoError(t, run.WriteBacktestOrg())
	data, err := os.ReadFile(run.OrgPath)
	require.NoError(t, err)
	s := string(data)

	assert.Contains(t, s, "* BACKTEST: Grid EUR_USD H1")
	assert.Contains(t, s, ":RUN_ID:      01J0TEST")
	assert.Contains(t, s, ":WIN_RATE:    75.00")
	assert.Contains(t, s, "| Max layers        | 4 |")
	assert.Contains(t, s, "max_layers: 4")
	assert.Contains(t, s, "- deep cycle in week 2")
	assert.Contains(t, s, "(profit-factor?)")

	assert.Error(t, (&BacktestRun{}).WriteBacktestOrg())
}
