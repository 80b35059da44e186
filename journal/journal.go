package journal

import (
	"time"

	"go.uber.org/multierr"

	"github.com/rustyeddy/gridtrader/market"
)

// TradeRecord is one closed cycle of a side: every layer opened from flat
// until the side was flat again.
type TradeRecord struct {
	TradeID    string
	Instrument string
	Side       market.Side
	Layers     int
	Volume     float64
	EntryPrice float64 // volume weighted
	ExitPrice  float64 // volume weighted
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
}

// FillRecord is one confirmed execution.
type FillRecord struct {
	OrderID    string
	Instrument string
	Side       market.Side
	Kind       string
	Price      float64
	Volume     float64
	Time       time.Time
	Closing    bool
}

type EquitySnapshot struct {
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordFill(FillRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Discard is a Journal that records nothing.
var Discard Journal = discard{}

type discard struct{}

func (discard) RecordTrade(TradeRecord) error     { return nil }
func (discard) RecordFill(FillRecord) error       { return nil }
func (discard) RecordEquity(EquitySnapshot) error { return nil }
func (discard) Close() error                      { return nil }

// Multi writes every record to all journals and reports every failure.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var err error
	for _, j := range m {
		err = multierr.Append(err, j.RecordTrade(t))
	}
	return err
}

func (m Multi) RecordFill(f FillRecord) error {
	var err error
	for _, j := range m {
		err = multierr.Append(err, j.RecordFill(f))
	}
	return err
}

func (m Multi) RecordEquity(e EquitySnapshot) error {
	var err error
	for _, j := range m {
		err = multierr.Append(err, j.RecordEquity(e))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, j := range m {
		err = multierr.Append(err, j.Close())
	}
	return err
}
