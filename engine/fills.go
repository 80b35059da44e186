package engine

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/exit"
	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/metrics"
)

// OnFill records confirmed volume. Entry fills append a leg carrying exactly
// the filled volume; closing fills reduce the side and clear it once flat.
func (e *Engine) OnFill(ctx context.Context, f broker.Fill) error {
	if !f.Side.Valid() {
		return errors.Errorf("engine: fill %s has invalid side %v", f.OrderID, f.Side)
	}
	if !(f.Volume > 0) || math.IsInf(f.Volume, 0) {
		return errors.Wrapf(ledger.ErrInvalidVolume, "engine: fill %s volume %v", f.OrderID, f.Volume)
	}

	b := e.books[f.Side]
	po := e.orders[f.OrderID]
	closing := f.Closing || (po != nil && po.kind != broker.KindEntry)

	metrics.Fills.WithLabelValues(f.Side.String(), boolLabel(closing)).Inc()

	var err error
	if closing {
		err = e.applyClose(ctx, b, f, po)
	} else {
		err = e.applyEntry(ctx, b, f, po)
	}

	if po != nil {
		po.filled += f.Volume
		if f.Final {
			delete(e.orders, f.OrderID)
		}
	}
	metrics.OpenLayers.WithLabelValues(f.Side.String()).Set(float64(b.ledger.LayerCount()))
	e.observeStop(b)
	return err
}

func (e *Engine) applyEntry(ctx context.Context, b *sideBook, f broker.Fill, po *pendingOrder) error {
	layer := b.ledger.LayerCount()
	if po != nil {
		layer = po.layer
	} else {
		e.log.Warn("entry fill for unknown order, recording it",
			zap.Stringer("side", b.side), zap.String("order", f.OrderID), zap.Float64("volume", f.Volume))
	}
	if b.closing {
		e.log.Warn("entry filled while side is closing",
			zap.Stringer("side", b.side), zap.String("order", f.OrderID))
	}

	wasEmpty := b.ledger.Empty()
	leg := ledger.Leg{Side: b.side, Price: f.Price, Volume: f.Volume, OpenTime: f.Time, Layer: layer}
	if err := b.ledger.AddLeg(leg); err != nil {
		return errors.Wrapf(err, "engine: fill %s", f.OrderID)
	}

	if wasEmpty {
		b.lock = exit.LockState{}
		b.trail, _ = e.cfg.Trailing.Arm(b.side, f.Price, market.QuoteAt(f.Time, f.Price), b.lastInputs)
	}

	avg, _ := b.ledger.AveragePrice()
	e.log.Info("entry filled",
		zap.Stringer("side", b.side),
		zap.String("order", f.OrderID),
		zap.Int("layer", layer),
		zap.Float64("price", f.Price),
		zap.Float64("volume", f.Volume),
		zap.Float64("avg", avg),
		zap.Float64("exposure", b.ledger.AggregateVolume()),
		zap.Bool("final", f.Final))

	if e.cfg.Trailing.StopOrders {
		return e.syncStopOrder(ctx, b)
	}
	return nil
}

func (e *Engine) applyClose(ctx context.Context, b *sideBook, f broker.Fill, po *pendingOrder) error {
	if b.ledger.Empty() {
		e.log.Warn("closing fill for flat side",
			zap.Stringer("side", b.side), zap.String("order", f.OrderID), zap.Float64("volume", f.Volume))
		if f.Final {
			b.closing = false
		}
		return nil
	}

	closed, err := b.ledger.Reduce(f.Volume)
	if err != nil {
		return errors.Wrapf(err, "engine: closing fill %s", f.OrderID)
	}
	var realized float64
	for _, l := range closed {
		realized += b.side.Sign() * (f.Price - l.Price) * l.Volume
	}
	e.log.Info("closing fill",
		zap.Stringer("side", b.side),
		zap.String("order", f.OrderID),
		zap.Float64("price", f.Price),
		zap.Float64("volume", f.Volume),
		zap.Float64("realized", realized),
		zap.Float64("remaining", b.ledger.AggregateVolume()))

	if b.ledger.Empty() {
		e.flatten(ctx, b, f.OrderID)
		return nil
	}

	if po != nil && f.Final {
		switch po.kind {
		case broker.KindClose:
			b.closing = false
		case broker.KindStop:
			b.stopOrder, b.stopPrice, b.stopVol = "", 0, 0
		}
	}
	if e.cfg.Trailing.StopOrders && (po == nil || po.kind != broker.KindStop || f.Final) {
		return e.syncStopOrder(ctx, b)
	}
	return nil
}

// flatten forgets every order still working for a side that just went flat.
// Entry and stop orders left at the venue are cancelled so they cannot reopen
// exposure.
func (e *Engine) flatten(ctx context.Context, b *sideBook, filledID string) {
	for id, o := range e.orders {
		if o.side != b.side || id == filledID {
			continue
		}
		if o.kind != broker.KindClose {
			if err := e.cancel(ctx, id); err != nil {
				e.log.Warn("cancel after flat failed",
					zap.Stringer("side", b.side), zap.String("order", id), zap.Error(err))
			}
		}
		delete(e.orders, id)
	}
	b.reset()
	e.log.Info("side flat", zap.Stringer("side", b.side))
}

// OnReject forgets a refused order. The ledger never saw it, so nothing else
// changes; the next event re-evaluates from the same state.
func (e *Engine) OnReject(r broker.Rejection) {
	po, ok := e.orders[r.OrderID]
	if !ok {
		e.log.Warn("rejection for unknown order", zap.String("order", r.OrderID), zap.String("reason", r.Reason))
		return
	}
	delete(e.orders, r.OrderID)

	b := e.books[po.side]
	switch po.kind {
	case broker.KindClose:
		b.closing = false
	case broker.KindStop:
		if b.stopOrder == r.OrderID {
			b.stopOrder, b.stopPrice, b.stopVol = "", 0, 0
		}
	}

	metrics.OrdersRejected.WithLabelValues(po.side.String()).Inc()
	e.log.Warn("order rejected",
		zap.Stringer("side", po.side),
		zap.String("order", r.OrderID),
		zap.Stringer("kind", po.kind),
		zap.Float64("volume", po.volume),
		zap.Error(r.Err()))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
