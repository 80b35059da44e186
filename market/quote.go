package market

import "time"

// Quote is the price view the engine evaluates against. Last is the mark
// used for money targets; High and Low bound the prices traded since the
// previous evaluation.
type Quote struct {
	Time time.Time
	Last float64
	High float64
	Low  float64
}

func QuoteFromCandle(c Candle) Quote {
	return Quote{Time: c.Time, Last: c.Close, High: c.High, Low: c.Low}
}

// QuoteFromTick marks a position on side s at the price it would close on:
// longs close on the bid, shorts on the ask.
func QuoteFromTick(t Tick, s Side) Quote {
	px := t.Bid
	if s == Short {
		px = t.Ask
	}
	return Quote{Time: t.Time, Last: px, High: px, Low: px}
}

// QuoteAt is a single-price quote.
func QuoteAt(tm time.Time, px float64) Quote {
	return Quote{Time: tm, Last: px, High: px, Low: px}
}

// Favorable returns the best price seen for side s.
func (q Quote) Favorable(s Side) float64 {
	if s == Long {
		return q.High
	}
	return q.Low
}

// Adverse returns the worst price seen for side s.
func (q Quote) Adverse(s Side) float64 {
	if s == Long {
		return q.Low
	}
	return q.High
}
