package engine

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/trailing"
)

// Restore rebuilds engine state from what the venue reports after a
// restart. Positions without a per-layer breakdown become one synthetic leg
// at the reported average price.
func (e *Engine) Restore(snap broker.Snapshot) error {
	for _, b := range e.books {
		b.reset()
	}
	e.orders = make(map[string]*pendingOrder)

	for _, p := range snap.Positions {
		if !p.Side.Valid() {
			return errors.Errorf("engine: restore: invalid side %v", p.Side)
		}
		if p.Volume <= 0 {
			continue
		}
		b := e.books[p.Side]
		if err := e.restoreLedger(b, p, snap); err != nil {
			return err
		}

		avg, err := b.ledger.AveragePrice()
		if err != nil {
			return errors.Wrapf(err, "engine: restore %s", p.Side)
		}
		b.trail, _ = e.cfg.Trailing.Arm(p.Side, avg, market.QuoteAt(snap.Time, avg), trailing.Inputs{})
		b.lastQuote = market.QuoteAt(snap.Time, avg)
	}

	for _, o := range snap.Orders {
		if !o.Side.Valid() {
			return errors.Errorf("engine: restore: order %s has invalid side %v", o.ID, o.Side)
		}
		b := e.books[o.Side]
		po := &pendingOrder{id: o.ID, kind: o.Kind, side: o.Side, volume: o.Volume, price: o.Price}

		switch o.Kind {
		case broker.KindEntry:
			po.layer = b.ledger.LayerCount()
		case broker.KindStop:
			b.stopOrder, b.stopPrice, b.stopVol = o.ID, o.Price, o.Volume
			if !b.trail.Stop.Ready || o.Side.Better(o.Price, b.trail.Stop.Value) {
				b.trail.Stop = trailing.Some(o.Price)
			}
		case broker.KindClose:
			b.closing = true
		default:
			return errors.Errorf("engine: restore: order %s has unknown kind %v", o.ID, o.Kind)
		}
		e.orders[o.ID] = po
	}

	if !snap.Time.IsZero() {
		e.lastEvent = snap.Time
	}
	for _, s := range market.Sides {
		v := e.Side(s)
		e.log.Info("restored side",
			zap.Stringer("side", s),
			zap.Float64("volume", v.Volume),
			zap.Float64("avg", v.AveragePrice),
			zap.Int("layers", v.Layers),
			zap.Stringer("stop", v.Stop),
			zap.Bool("closing", v.Closing))
	}
	return nil
}

func (e *Engine) restoreLedger(b *sideBook, p broker.Position, snap broker.Snapshot) error {
	if len(p.Legs) == 0 {
		if !(p.AveragePrice > 0) {
			return errors.Errorf("engine: restore %s: no legs and no average price", p.Side)
		}
		e.log.Warn("venue reported no layer breakdown, using one synthetic leg",
			zap.Stringer("side", p.Side),
			zap.Float64("volume", p.Volume),
			zap.Float64("avg", p.AveragePrice))
		return errors.Wrap(b.ledger.AddLeg(ledger.Leg{
			Side:     p.Side,
			Price:    p.AveragePrice,
			Volume:   p.Volume,
			OpenTime: snap.Time,
		}), "engine: restore synthetic leg")
	}

	for _, l := range p.Legs {
		l.Side = p.Side
		if err := b.ledger.AddLeg(l); err != nil {
			return errors.Wrapf(err, "engine: restore %s leg", p.Side)
		}
	}
	if math.Abs(b.ledger.AggregateVolume()-p.Volume) > 1e-9 {
		e.log.Warn("restored legs disagree with reported volume",
			zap.Stringer("side", p.Side),
			zap.Float64("legs", b.ledger.AggregateVolume()),
			zap.Float64("reported", p.Volume))
	}
	if e.cfg.RiskPercent > 0 {
		if first, ok := b.ledger.First(); ok {
			b.base = first.Volume
		}
	}
	return nil
}
