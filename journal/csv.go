package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

var (
	tradeHeader  = []string{"trade_id", "instrument", "side", "layers", "volume", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "reason"}
	fillHeader   = []string{"order_id", "instrument", "side", "kind", "price", "volume", "time", "closing"}
	equityHeader = []string{"time", "balance", "equity", "margin_used", "free_margin", "margin_level"}
)

type CSVJournal struct {
	trades *csv.Writer
	fills  *csv.Writer
	equity *csv.Writer
	files  []*os.File
}

func NewCSV(tradesPath, fillsPath, equityPath string) (*CSVJournal, error) {
	j := &CSVJournal{}

	open := func(path string, header []string) (*csv.Writer, error) {
		fh, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, fh)
		w := csv.NewWriter(fh)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.trades, err = open(tradesPath, tradeHeader); err != nil {
		return nil, multierr.Append(err, j.closeFiles())
	}
	if j.fills, err = open(fillsPath, fillHeader); err != nil {
		return nil, multierr.Append(err, j.closeFiles())
	}
	if j.equity, err = open(equityPath, equityHeader); err != nil {
		return nil, multierr.Append(err, j.closeFiles())
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.TradeID,
		t.Instrument,
		t.Side.String(),
		strconv.Itoa(t.Layers),
		f(t.Volume),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordFill(r FillRecord) error {
	err := j.fills.Write([]string{
		r.OrderID,
		r.Instrument,
		r.Side.String(),
		r.Kind,
		f(r.Price),
		f(r.Volume),
		r.Time.Format(time.RFC3339),
		strconv.FormatBool(r.Closing),
	})
	if err != nil {
		return err
	}
	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.MarginLevel),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	var err error
	for _, w := range []*csv.Writer{j.trades, j.fills, j.equity} {
		w.Flush()
		err = multierr.Append(err, w.Error())
	}
	return multierr.Append(err, j.closeFiles())
}

func (j *CSVJournal) closeFiles() error {
	var err error
	for _, fh := range j.files {
		err = multierr.Append(err, fh.Close())
	}
	j.files = nil
	return err
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
