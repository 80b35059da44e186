package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridtrader/market"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','fills','equity')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["fills"])
	assert.True(t, found["equity"])
}

func TestSQLiteRecordTrade(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	open := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)

	rec := TradeRecord{
		TradeID:    "T1",
		Instrument: "EUR_USD",
		Side:       market.Long,
		Layers:     2,
		Volume:     3,
		EntryPrice: 1.2345678,
		ExitPrice:  1.3456789,
		OpenTime:   open,
		CloseTime:  closeT,
		RealizedPL: -12.5,
		Reason:     "trailing stop",
	}

	assert.NoError(t, j.RecordTrade(rec))
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		tradeID   string
		side      string
		layers    int
		volume    float64
		closeTime time.Time
		reason    string
	)

	err = db.QueryRow(`
        SELECT trade_id, side, layers, volume, close_time, reason
        FROM trades LIMIT 1`).Scan(&tradeID, &side, &layers, &volume, &closeTime, &reason)
	assert.NoError(t, err)

	assert.Equal(t, rec.TradeID, tradeID)
	assert.Equal(t, "long", side)
	assert.Equal(t, 2, layers)
	assert.InDelta(t, rec.Volume, volume, 1e-9)
	assert.True(t, closeTime.Equal(rec.CloseTime))
	assert.Equal(t, rec.Reason, reason)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	rec := EquitySnapshot{
		Time:        ts,
		Balance:     1000.1,
		Equity:      999.9,
		MarginUsed:  10.5,
		FreeMargin:  989.4,
		MarginLevel: 99.99,
	}
	require.NoError(t, j.RecordEquity(rec))

	got, err := j.ListEquityBetween(ts, ts.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(ts))
	assert.InDelta(t, rec.Equity, got[0].Equity, 1e-6)
	assert.InDelta(t, rec.MarginLevel, got[0].MarginLevel, 1e-6)
}

func TestSQLiteFills(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	fills := []FillRecord{
		{OrderID: "A", Instrument: "EUR_USD", Side: market.Long, Kind: "entry", Price: 1.1, Volume: 1, Time: base},
		{OrderID: "B", Instrument: "EUR_USD", Side: market.Long, Kind: "entry", Price: 1.09, Volume: 2, Time: base.Add(time.Hour)},
		{OrderID: "C", Instrument: "EUR_USD", Side: market.Long, Kind: "close", Price: 1.12, Volume: 3, Time: base.Add(2 * time.Hour), Closing: true},
	}
	for _, f := range fills {
		require.NoError(t, j.RecordFill(f))
	}

	got, err := j.ListFillsBetween(base.Add(30*time.Minute), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].OrderID)
	assert.False(t, got[0].Closing)
	assert.Equal(t, "C", got[1].OrderID)
	assert.True(t, got[1].Closing)
	assert.Equal(t, market.Long, got[1].Side)
}
