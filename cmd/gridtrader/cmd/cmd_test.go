package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridtrader/config"
	"github.com/rustyeddy/gridtrader/journal"
	"github.com/rustyeddy/gridtrader/market"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile, runDataPath, runTicksPath, runOrgPath, runTimeframe, runNotes = "", "", "", "", "", nil
		journalDBPath, journalSide = "./gridtrader.sqlite", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gridtrader version")
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridtrader.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "EUR_USD")
	assert.Contains(t, out, "fixed+atr")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grid:\n  max_layers: 0\n"), 0644))

	_, err := execute(t, "config", "validate", "-f", path)
	assert.Error(t, err)
}

func TestRunReplaysCandles(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Journal.Type = "none"
	cfg.Log.Level = "error"
	cfg.Simulation.SettleAtEnd = true
	cfgPath := filepath.Join(dir, "gridtrader.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	data := filepath.Join(dir, "candles.csv")
	csv := "time,open,high,low,close\n" +
		"2024-03-04T09:00:00Z,1.1000,1.1005,1.0995,1.1000\n" +
		"2024-03-04T10:00:00Z,1.1000,1.1002,1.0970,1.0975\n" +
		"2024-03-04T11:00:00Z,1.0975,1.1010,1.0970,1.1005\n" +
		"2024-03-04T12:00:00Z,1.1005,1.1060,1.1000,1.1050\n"
	require.NoError(t, os.WriteFile(data, []byte(csv), 0644))

	org := filepath.Join(dir, "run.org")
	out, err := execute(t, "run", "-c", cfgPath, "--data", data, "--org", org, "--timeframe", "H1", "--note", "smoke")
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Bars:          4")
	assert.Contains(t, out, "Report written to")

	report, err := os.ReadFile(org)
	require.NoError(t, err)
	assert.Contains(t, string(report), "* BACKTEST: Grid EUR_USD H1")
	assert.Contains(t, string(report), "- smoke")
}

func TestRunReplaysTicks(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Journal.Type = "none"
	cfg.Log.Level = "error"
	cfgPath := filepath.Join(dir, "gridtrader.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	data := filepath.Join(dir, "ticks.csv")
	csv := "time,instrument,bid,ask\n" +
		"2024-03-04T09:00:00Z,EUR_USD,1.1000,1.1001\n" +
		"2024-03-04T09:00:01Z,USD_JPY,150.00,150.01\n" +
		"2024-03-04T09:00:02Z,EUR_USD,1.0990,1.0991\n"
	require.NoError(t, os.WriteFile(data, []byte(csv), 0644))

	out, err := execute(t, "run", "-c", cfgPath, "--ticks", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Bars:          2")
}

func TestRunRequiresData(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candle data")
}

func TestDayBounds(t *testing.T) {
	start, end, err := dayBounds(time.UTC, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "15/01/2024")
	assert.Error(t, err)
}

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := journal.NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	closed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, j.RecordTrade(journal.TradeRecord{
		TradeID: "01HXLONG0001", Instrument: "EUR_USD", Side: market.Long, Layers: 3, Volume: 7,
		EntryPrice: 94.5, ExitPrice: 98, OpenTime: closed.Add(-time.Hour), CloseTime: closed,
		RealizedPL: 24.5, Reason: "stop",
	}))
	require.NoError(t, j.RecordTrade(journal.TradeRecord{
		TradeID: "01HXSHRT0002", Instrument: "EUR_USD", Side: market.Short, Layers: 1, Volume: 1,
		EntryPrice: 100, ExitPrice: 102, OpenTime: closed, CloseTime: closed.Add(time.Hour),
		RealizedPL: -2, Reason: "close",
	}))
	return path
}

func TestJournalDayListsCycles(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "journal", "day", "2024-03-15", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "* Cycles closed 2024-03-15")
	assert.Contains(t, out, "| 01HXLONG | long | 3 | 7 |")
	assert.Contains(t, out, "| 01HXSHRT | short | 1 | 1 |")
	assert.Contains(t, out, "| total | 2 cycles | | | | | | 22.50 | |")
	assert.Contains(t, out, ":LAYERS: 3")
}

func TestJournalDayFiltersSide(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "journal", "day", "2024-03-15", "--db", db, "--side", "short")
	require.NoError(t, err)
	assert.NotContains(t, out, "01HXLONG")
	assert.Contains(t, out, "| total | 1 cycles | | | | | | -2.00 | |")

	_, err = execute(t, "journal", "day", "2024-03-15", "--db", db, "--side", "sideways")
	assert.Error(t, err)
}

func TestJournalTrade(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "journal", "trade", "01HXLONG0001", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "** Trade: EUR_USD long (01HXLONG)")
	assert.Contains(t, out, ":VOLUME: 7")

	_, err = execute(t, "journal", "trade", "missing", "--db", db)
	assert.Error(t, err)
}
