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

// TickFeed yields quotes one at a time and returns (ok=false, err=nil) at EOF.
type TickFeed interface {
	Next() (t market.Tick, ok bool, err error)
	Close() error
}

// CSVTickFeed reads tick CSV rows:
//
//	time,instrument,bid,ask
//
// Extra columns are ignored. Rows for other instruments are skipped when an
// instrument is given, as are rows outside [From, To).
type CSVTickFeed struct {
	rc         io.Closer
	r          *csv.Reader
	instrument string
	from       time.Time
	to         time.Time

	sawFirst bool
}

func NewCSVTickFeed(path, instrument string, from, to time.Time) (*CSVTickFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return newCSVTickFeed(f, f, instrument, from, to), nil
}

// NewCSVTickReader reads ticks from r. Close is a no-op.
func NewCSVTickReader(r io.Reader, instrument string, from, to time.Time) *CSVTickFeed {
	return newCSVTickFeed(r, nil, instrument, from, to)
}

func newCSVTickFeed(r io.Reader, c io.Closer, instrument string, from, to time.Time) *CSVTickFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &CSVTickFeed{rc: c, r: cr, instrument: instrument, from: from, to: to}
}

func (f *CSVTickFeed) Close() error {
	if f.rc != nil {
		return f.rc.Close()
	}
	return nil
}

func (f *CSVTickFeed) Next() (market.Tick, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Tick{}, false, nil
		}
		if err != nil {
			return market.Tick{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		t, ok, err := parseTickRow(row)
		if err != nil {
			return market.Tick{}, false, err
		}
		if !ok {
			continue
		}
		if f.instrument != "" && t.Instrument != "" && t.Instrument != f.instrument {
			continue
		}
		if !inRange(t.Time, f.from, f.to) {
			continue
		}
		return t, true, nil
	}
}

func parseTickRow(row []string) (market.Tick, bool, error) {
	if len(row) < 4 {
		return market.Tick{}, false, nil
	}
	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Tick{}, false, nil
	}
	tm, err := parseTime(ts)
	if err != nil {
		return market.Tick{}, false, err
	}
	bid, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad bid %q: %w", row[2], err)
	}
	ask, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad ask %q: %w", row[3], err)
	}
	return market.Tick{Instrument: strings.TrimSpace(row[1]), Time: tm, Bid: bid, Ask: ask}, true, nil
}

// SliceTickFeed replays ticks held in memory.
type SliceTickFeed struct {
	Ticks []market.Tick
	i     int
}

func (s *SliceTickFeed) Next() (market.Tick, bool, error) {
	if s.i >= len(s.Ticks) {
		return market.Tick{}, false, nil
	}
	t := s.Ticks[s.i]
	s.i++
	return t, true, nil
}

func (s *SliceTickFeed) Close() error { return nil }

// candleBuilder rolls tick mids into candles aligned to period.
type candleBuilder struct {
	period time.Duration
	cur    market.Candle
	open   bool
}

// add folds t into the current candle. When t starts a new period the
// finished candle is returned with ok set.
func (b *candleBuilder) add(t market.Tick) (done market.Candle, ok bool) {
	start := t.Time.Truncate(b.period)
	px := t.Mid()

	if b.open && start.Equal(b.cur.Time) {
		b.cur.High = max(b.cur.High, px)
		b.cur.Low = min(b.cur.Low, px)
		b.cur.Close = px
		b.cur.Volume++
		return market.Candle{}, false
	}

	done, ok = b.cur, b.open
	b.cur = market.Candle{Time: start, Open: px, High: px, Low: px, Close: px, Volume: 1}
	b.open = true
	return done, ok
}
