// Package backtest replays historical candles or ticks through the engine
// against the simulated venue.
package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/gridtrader/market"
)

// CandleFeed yields closed candles one at a time.
// Implementations should be deterministic and return (ok=false, err=nil) at EOF.
type CandleFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// CSVCandleFeed reads candle CSV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339, RFC3339Nano or unix seconds.
//
// It optionally filters candles to [From, To) if provided.
// Header row ("time,...") is allowed.
// Empty/short rows are skipped.
type CSVCandleFeed struct {
	rc   io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
}

func NewCSVCandleFeed(path string, from, to time.Time) (*CSVCandleFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return newCSVCandleFeed(f, f, from, to), nil
}

// NewCSVCandleReader reads candles from r. Close is a no-op.
func NewCSVCandleReader(r io.Reader, from, to time.Time) *CSVCandleFeed {
	return newCSVCandleFeed(r, nil, from, to)
}

func newCSVCandleFeed(r io.Reader, c io.Closer, from, to time.Time) *CSVCandleFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &CSVCandleFeed{rc: c, r: cr, from: from, to: to}
}

func (f *CSVCandleFeed) Close() error {
	if f.rc != nil {
		return f.rc.Close()
	}
	return nil
}

func (f *CSVCandleFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, ok, err := parseCandleRow(row)
		if err != nil {
			return market.Candle{}, false, err
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

func parseCandleRow(row []string) (market.Candle, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, false, err
	}

	var px [4]float64
	for i := range px {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad price %q: %w", row[i+1], err)
		}
		px[i] = v
	}
	c := market.Candle{Time: t, Open: px[0], High: px[1], Low: px[2], Close: px[3]}

	if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad volume %q: %w", row[5], err)
		}
		c.Volume = v
	}
	return c, true, nil
}

func parseTime(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", ts)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays candles held in memory.
type SliceFeed struct {
	Candles []market.Candle
	i       int
}

func (s *SliceFeed) Next() (market.Candle, bool, error) {
	if s.i >= len(s.Candles) {
		return market.Candle{}, false, nil
	}
	c := s.Candles[s.i]
	s.i++
	return c, true, nil
}

func (s *SliceFeed) Close() error { return nil }
