package sim

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/journal"
	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/pkg/id"
)

// Trade reasons for closes the venue raises itself.
const (
	ReasonLiquidation = "liquidation"
	ReasonSettlement  = "end of data"
)

const volumeEpsilon = 1e-9

// event is a notification collected under the lock and delivered after it
// is released.
type event struct {
	fill   *broker.Fill
	reject *broker.Rejection
}

// ProcessBar advances the venue through one bar. Queued market and close
// orders fill at the open, resting stops fill where the bar crosses them,
// then the account is revalued at the close and margin is enforced.
func (v *Venue) ProcessBar(c market.Candle) error {
	v.mu.Lock()

	v.last = market.QuoteFromCandle(c)
	v.mark = flatMark(c.Close)
	var events []event

	for _, o := range v.sortedOrders() {
		switch o.kind {
		case broker.KindEntry:
			events = v.fillEntryLocked(o, c.Open, c.Time, events)
		case broker.KindClose:
			events = v.fillCloseLocked(o, c.Open, c.Time, events)
		}
	}
	for _, o := range v.sortedOrders() {
		if o.kind != broker.KindStop {
			continue
		}
		px, hit := stopTriggered(o.side, o.price, c)
		if hit {
			events = v.fillCloseLocked(o, px, c.Time, events)
		}
	}

	v.revalueLocked(flatMark(c.Close))
	err := v.journal.RecordEquity(v.snapshotLocked(c.Time))

	events = v.enforceMarginLocked(flatMark(c.Close), c.Time, events)

	listener := v.listener
	v.mu.Unlock()

	v.notify(listener, events)
	return err
}

// stopTriggered reports whether a protective stop for a position on side
// was crossed during c, and the price it fills at. A bar that opens through
// the stop fills at the open.
func stopTriggered(side market.Side, stop float64, c market.Candle) (float64, bool) {
	if side == market.Long {
		if c.Low > stop {
			return 0, false
		}
		return math.Min(stop, c.Open), true
	}
	if c.High < stop {
		return 0, false
	}
	return math.Max(stop, c.Open), true
}

func (v *Venue) sortedOrders() []*order {
	out := make([]*order, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (v *Venue) chunk(remaining float64) float64 {
	if v.cfg.MaxFillVolume > 0 && remaining > v.cfg.MaxFillVolume {
		return v.cfg.MaxFillVolume
	}
	return remaining
}

func (v *Venue) rejectLocked(o *order, reason string, events []event) []event {
	delete(v.orders, o.id)
	return append(events, event{reject: &broker.Rejection{OrderID: o.id, Reason: reason}})
}

func (v *Venue) fillEntryLocked(o *order, px float64, tm time.Time, events []event) []event {
	vol := v.chunk(o.remaining())

	if v.cfg.MarginRate > 0 {
		need := vol * px * v.cfg.pointValue() * v.cfg.MarginRate
		if need > v.acct.FreeMargin {
			return v.rejectLocked(o, "insufficient margin", events)
		}
	}

	p := v.pos[o.side]
	if p.legs.Empty() {
		p.tradeID = id.NewAt(tm)
		p.openTime = tm
		p.layers = 0
		p.entryVolume, p.entryNotion = 0, 0
		p.exitVolume, p.exitNotional = 0, 0
		p.realized = 0
	}
	if o.filled == 0 {
		o.layer = p.layers
		p.layers++
	}
	if err := p.legs.AddLeg(ledger.Leg{Side: o.side, Price: px, Volume: vol, OpenTime: tm, Layer: o.layer}); err != nil {
		return v.rejectLocked(o, err.Error(), events)
	}
	p.entryVolume += vol
	p.entryNotion += vol * px

	o.filled += vol
	final := o.remaining() <= volumeEpsilon
	if final {
		delete(v.orders, o.id)
	}
	v.recordFillLocked(o, px, vol, tm, false)
	v.recomputeMarginLocked(flatMark(px))

	return append(events, event{fill: &broker.Fill{
		OrderID: o.id, Side: o.side, Price: px, Volume: vol, Time: tm, Final: final,
	}})
}

// fillCloseLocked reduces the side held by a close or stop order.
func (v *Venue) fillCloseLocked(o *order, px float64, tm time.Time, events []event) []event {
	p := v.pos[o.side]
	if p.legs.Empty() {
		return v.rejectLocked(o, "no position", events)
	}

	want := p.legs.AggregateVolume()
	if o.kind == broker.KindStop {
		want = math.Min(want, o.remaining())
	}
	vol := want
	if o.forced == "" {
		vol = v.chunk(want)
	}

	closed, err := p.legs.Reduce(vol)
	if err != nil {
		return v.rejectLocked(o, err.Error(), events)
	}
	var pl float64
	for _, leg := range closed {
		pl += o.side.Sign() * (px - leg.Price) * leg.Volume * v.cfg.pointValue()
	}
	v.acct.Balance += pl
	p.realized += pl
	p.exitVolume += vol
	p.exitNotional += vol * px

	o.filled += vol
	flat := p.legs.Empty()
	final := flat || (o.kind == broker.KindStop && o.remaining() <= volumeEpsilon)
	if final {
		delete(v.orders, o.id)
	}
	v.recordFillLocked(o, px, vol, tm, true)
	if flat {
		reason := o.kind.String()
		if o.forced != "" {
			reason = o.forced
		}
		v.recordTradeLocked(o.side, tm, reason)
	}
	v.revalueLocked(flatMark(px))

	return append(events, event{fill: &broker.Fill{
		OrderID: o.id, Side: o.side, Price: px, Volume: vol, Time: tm, Closing: true, Final: final,
	}})
}

func (v *Venue) recordFillLocked(o *order, px, vol float64, tm time.Time, closing bool) {
	// Journal failures never undo an executed fill.
	_ = v.journal.RecordFill(journal.FillRecord{
		OrderID:    o.id,
		Instrument: v.cfg.Instrument.Name,
		Side:       o.side,
		Kind:       o.kind.String(),
		Price:      px,
		Volume:     vol,
		Time:       tm,
		Closing:    closing,
	})
}

func (v *Venue) recordTradeLocked(side market.Side, tm time.Time, reason string) {
	p := v.pos[side]
	rec := journal.TradeRecord{
		TradeID:    p.tradeID,
		Instrument: v.cfg.Instrument.Name,
		Side:       side,
		Layers:     p.layers,
		Volume:     p.entryVolume,
		OpenTime:   p.openTime,
		CloseTime:  tm,
		RealizedPL: p.realized,
		Reason:     reason,
	}
	if p.entryVolume > 0 {
		rec.EntryPrice = p.entryNotion / p.entryVolume
	}
	if p.exitVolume > 0 {
		rec.ExitPrice = p.exitNotional / p.exitVolume
	}
	_ = v.journal.RecordTrade(rec)
}

// markFunc is the price each side is marked at.
type markFunc func(market.Side) float64

func flatMark(px float64) markFunc {
	return func(market.Side) float64 { return px }
}

func (v *Venue) revalueLocked(mark markFunc) {
	equity := v.acct.Balance
	for s, p := range v.pos {
		equity += p.legs.UnrealizedPL(mark(s)) * v.cfg.pointValue()
	}
	v.acct.Equity = equity
	v.recomputeMarginLocked(mark)
}

func (v *Venue) recomputeMarginLocked(mark markFunc) {
	var used float64
	if v.cfg.MarginRate > 0 {
		for s, p := range v.pos {
			used += p.legs.AggregateVolume() * mark(s) * v.cfg.pointValue() * v.cfg.MarginRate
		}
	}
	v.acct.MarginUsed = used
	v.acct.FreeMargin = v.acct.Equity - used
}

// enforceMarginLocked closes the worst losing side while equity is below
// the margin in use.
func (v *Venue) enforceMarginLocked(mark markFunc, tm time.Time, events []event) []event {
	for v.acct.MarginUsed > 0 && v.acct.Equity < v.acct.MarginUsed {
		var worst market.Side
		var worstPL float64
		for _, s := range market.Sides {
			p := v.pos[s]
			if p.legs.Empty() {
				continue
			}
			pl := p.legs.UnrealizedPL(mark(s))
			if worst == 0 || pl < worstPL {
				worst, worstPL = s, pl
			}
		}
		if worst == 0 {
			break
		}

		o := &order{kind: broker.KindClose, side: worst, forced: ReasonLiquidation}
		v.addOrder(o)
		events = v.fillCloseLocked(o, mark(worst), tm, events)
	}
	return events
}

// Settle closes every open side at its last closing price and drops working
// orders. Backtests call it once the data runs out.
func (v *Venue) Settle() error {
	v.mu.Lock()

	var events []event
	if v.mark != nil {
		for _, s := range market.Sides {
			if v.pos[s].legs.Empty() {
				continue
			}
			o := &order{kind: broker.KindClose, side: s, forced: ReasonSettlement}
			v.addOrder(o)
			events = v.fillCloseLocked(o, v.mark(s), v.last.Time, events)
		}
	}
	for id := range v.orders {
		delete(v.orders, id)
	}
	err := v.journal.RecordEquity(v.snapshotLocked(v.last.Time))

	listener := v.listener
	v.mu.Unlock()

	v.notify(listener, events)
	return err
}

func (v *Venue) notify(l Listener, events []event) {
	if l == nil {
		return
	}
	for _, ev := range events {
		if ev.fill != nil {
			l.OnFill(*ev.fill)
		} else if ev.reject != nil {
			l.OnReject(*ev.reject)
		}
	}
}

func (v *Venue) snapshotLocked(tm time.Time) journal.EquitySnapshot {
	snap := journal.EquitySnapshot{
		Time:       tm,
		Balance:    v.acct.Balance,
		Equity:     v.acct.Equity,
		MarginUsed: v.acct.MarginUsed,
		FreeMargin: v.acct.FreeMargin,
	}
	if v.acct.MarginUsed > 0 {
		snap.MarginLevel = v.acct.Equity / v.acct.MarginUsed
	}
	return snap
}
