package sim

import (
	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/market"
)

// tickMark marks longs at the bid and shorts at the ask.
func tickMark(t market.Tick) markFunc {
	return func(s market.Side) float64 {
		if s == market.Short {
			return t.Ask
		}
		return t.Bid
	}
}

// openPrice is where an entry on side s executes: longs buy the ask, shorts
// sell the bid.
func openPrice(t market.Tick, s market.Side) float64 {
	if s == market.Short {
		return t.Bid
	}
	return t.Ask
}

// ProcessTick advances the venue through one quote. Queued orders fill at
// the side's executable price, stops trigger once the closing price reaches
// them and fill there. Equity is journalled only when something filled.
func (v *Venue) ProcessTick(t market.Tick) error {
	v.mu.Lock()

	v.last = market.QuoteAt(t.Time, t.Mid())
	mark := tickMark(t)
	v.mark = mark
	var events []event

	for _, o := range v.sortedOrders() {
		switch o.kind {
		case broker.KindEntry:
			events = v.fillEntryLocked(o, openPrice(t, o.side), t.Time, events)
		case broker.KindClose:
			events = v.fillCloseLocked(o, mark(o.side), t.Time, events)
		}
	}
	for _, o := range v.sortedOrders() {
		if o.kind != broker.KindStop {
			continue
		}
		px := mark(o.side)
		if (o.side == market.Long && px <= o.price) || (o.side == market.Short && px >= o.price) {
			events = v.fillCloseLocked(o, px, t.Time, events)
		}
	}

	v.revalueLocked(mark)
	var err error
	if len(events) > 0 {
		err = v.journal.RecordEquity(v.snapshotLocked(t.Time))
	}

	events = v.enforceMarginLocked(mark, t.Time, events)

	listener := v.listener
	v.mu.Unlock()

	v.notify(listener, events)
	return err
}
