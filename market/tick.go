package market

import "time"

// Tick is a best bid / best ask update.
type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
}

func (t Tick) Mid() float64 {
	if t.Bid == 0 && t.Ask == 0 {
		return 0
	}
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Valid reports whether the tick has a usable two-sided price.
func (t Tick) Valid() bool {
	return !t.Time.IsZero() && t.Bid > 0 && t.Ask >= t.Bid
}
