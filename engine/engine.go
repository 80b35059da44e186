// Package engine drives layered entries and exits for one instrument.
//
// An Engine owns a ledger, trailing stop and breakeven lock per side. Market
// events ask the exit evaluator whether to flatten and the grid scheduler
// whether to add a layer; the resulting orders go to a broker.Venue and the
// ledger only changes when the venue confirms a fill. Engine methods are not
// safe for concurrent use; Run serializes everything onto one goroutine.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/exit"
	"github.com/rustyeddy/gridtrader/grid"
	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/logger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/metrics"
	"github.com/rustyeddy/gridtrader/risk"
	"github.com/rustyeddy/gridtrader/trailing"
)

var ErrStaleData = errors.New("stale market data")

type sideBook struct {
	side   market.Side
	ledger *ledger.Ledger
	trail  trailing.State
	lock   exit.LockState

	// base is the first-layer volume of the current cycle.
	base float64

	closing   bool
	stopOrder string
	stopPrice float64
	stopVol   float64

	lastQuote  market.Quote
	lastInputs trailing.Inputs
}

func (b *sideBook) reset() {
	b.ledger.Clear()
	b.trail = trailing.Reset()
	b.lock = exit.LockState{}
	b.base = 0
	b.closing = false
	b.stopOrder, b.stopPrice, b.stopVol = "", 0, 0
}

type pendingOrder struct {
	id     string
	kind   broker.OrderKind
	side   market.Side
	volume float64
	price  float64
	layer  int
	filled float64
}

// Engine is the single writer for one instrument's layered positions.
type Engine struct {
	cfg   Config
	venue broker.Venue
	log   *zap.Logger

	books  map[market.Side]*sideBook
	orders map[string]*pendingOrder

	lastEvent   time.Time
	lastArrival time.Time
	now         func() time.Time
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// WithClock replaces time.Now for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates cfg and refuses to build an engine on a configuration
// error.
func New(cfg Config, venue broker.Venue, opts ...Option) (*Engine, error) {
	if venue == nil {
		return nil, errors.New("engine: venue is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine: refusing to start")
	}
	if cfg.RiskPercent > 0 {
		if _, ok := venue.(broker.AccountSource); !ok {
			return nil, errors.New("engine: risk sizing needs a venue that reports its account")
		}
		if err := cfg.Instrument.Validate(); err != nil {
			return nil, errors.Wrap(err, "engine: risk sizing")
		}
	}

	e := &Engine{
		cfg:    cfg,
		venue:  venue,
		log:    zap.NewNop(),
		books:  make(map[market.Side]*sideBook, 2),
		orders: make(map[string]*pendingOrder),
		now:    time.Now,
	}
	for _, s := range market.Sides {
		e.books[s] = &sideBook{side: s, ledger: ledger.New(s)}
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// OnBar evaluates both sides against a closed candle.
func (e *Engine) OnBar(ctx context.Context, c market.Candle, in trailing.Inputs, sig market.Side) error {
	if !c.Valid() {
		return errors.Errorf("engine: invalid candle at %s", c.Time.Format(time.RFC3339))
	}
	if err := e.admit(c.Time); err != nil {
		return err
	}
	q := market.QuoteFromCandle(c)
	return e.evaluate(ctx, func(market.Side) market.Quote { return q }, in, sig, true)
}

// OnTick evaluates each side at the price it would close on.
func (e *Engine) OnTick(ctx context.Context, t market.Tick, in trailing.Inputs, sig market.Side) error {
	if t.Bid <= 0 || t.Ask <= 0 {
		return errors.Errorf("engine: invalid tick bid=%v ask=%v", t.Bid, t.Ask)
	}
	if err := e.admit(t.Time); err != nil {
		return err
	}
	return e.evaluate(ctx, func(s market.Side) market.Quote { return market.QuoteFromTick(t, s) }, in, sig, true)
}

func (e *Engine) admit(ts time.Time) error {
	if !e.lastEvent.IsZero() && ts.Before(e.lastEvent) {
		e.log.Warn("ignoring out of order event",
			zap.Time("event", ts), zap.Time("last", e.lastEvent))
		return errors.Wrapf(ErrStaleData, "event at %s precedes %s",
			ts.Format(time.RFC3339Nano), e.lastEvent.Format(time.RFC3339Nano))
	}
	e.lastEvent = ts
	e.lastArrival = e.now()
	return nil
}

func (e *Engine) evaluate(ctx context.Context, quote func(market.Side) market.Quote, in trailing.Inputs, sig market.Side, entries bool) error {
	var err error
	for _, s := range market.Sides {
		err = multierr.Append(err, e.step(ctx, e.books[s], quote(s), in, sig, entries))
	}
	return err
}

// decision is what one side wants after looking at the market.
type decision struct {
	trail  trailing.State
	lock   exit.LockState
	exit   exit.Result
	trRes  trailing.Result
	entry  grid.Decision
	sizing error
}

// step runs exit, entry and trailing for one side. The decision is computed
// on copies; a panic there is logged and leaves the side untouched.
func (e *Engine) step(ctx context.Context, b *sideBook, q market.Quote, in trailing.Inputs, sig market.Side, entries bool) error {
	d, err := e.decide(ctx, b, q, in, sig, entries)
	if err != nil {
		return err
	}

	// the range is consumed here; re-evaluation sees only the last price
	b.lastQuote, b.lastInputs = market.QuoteAt(q.Time, q.Last), in
	b.trail, b.lock = d.trail, d.lock
	e.observeStop(b)

	if d.exit.Action == exit.CloseAll {
		return e.closeAll(ctx, b, d.exit.Reason, q)
	}

	if d.trRes.Changed && e.cfg.Trailing.StopOrders {
		if err := e.syncStopOrder(ctx, b); err != nil {
			return err
		}
	}

	if d.sizing != nil {
		e.log.Info("entry skipped",
			zap.Stringer("side", b.side), zap.Float64("price", q.Last), zap.Error(d.sizing))
		return nil
	}
	if d.entry.Add {
		return e.placeEntry(ctx, b, d.entry, q)
	}
	return nil
}

func (e *Engine) decide(ctx context.Context, b *sideBook, q market.Quote, in trailing.Inputs, sig market.Side, entries bool) (d decision, err error) {
	component := "trailing"
	defer func() {
		if r := recover(); r != nil {
			metrics.ContainedFailures.WithLabelValues(component).Inc()
			err = errors.WithStack(fmt.Errorf("engine: %s panicked: %v", component, r))
			e.log.Error("evaluation failed, state unchanged",
				zap.Stringer("side", b.side),
				zap.Float64("price", q.Last),
				zap.String("component", component),
				zap.Error(err))
		}
	}()

	d.trail, d.lock = b.trail, b.lock
	if b.closing {
		return d, nil
	}

	if !b.ledger.Empty() {
		avg, aerr := b.ledger.AveragePrice()
		if aerr != nil {
			return d, e.contain(b, q, "ledger", aerr)
		}

		d.trail, d.trRes = e.cfg.Trailing.Step(b.trail, avg, q, in)
		if len(d.trRes.NotReady) > 0 || d.trRes.Deferred {
			e.log.Debug("trailing stop not ready",
				zap.Stringer("side", b.side),
				zap.Strings("modes", modeNames(d.trRes.NotReady)),
				zap.Bool("deferred", d.trRes.Deferred))
		}

		component = "exit"
		d.exit = exit.Evaluate(exit.Input{
			Side:         b.side,
			AveragePrice: avg,
			Volume:       b.ledger.AggregateVolume(),
			Quote:        q,
			Trailing:     d.trRes.Exit,
			Lock:         b.lock,
			Targets:      e.cfg.Exit,
		})
		d.lock = d.exit.Lock
		if d.exit.Action == exit.CloseAll {
			return d, nil
		}
	}

	if !entries || !e.cfg.enabled(b.side) || e.entryWorking(b.side) {
		return d, nil
	}
	if b.ledger.Empty() && e.cfg.RequireSignal && sig != b.side {
		return d, nil
	}

	gcfg := e.cfg.Grid
	if b.ledger.Empty() && e.cfg.RiskPercent > 0 {
		component = "risk"
		base, serr := e.sizeBase(ctx, in)
		if serr != nil {
			d.sizing = serr
			return d, nil
		}
		gcfg = gcfg.WithBaseVolume(base)
	} else if b.base > 0 {
		gcfg = gcfg.WithBaseVolume(b.base)
	}

	component = "grid"
	d.entry = grid.ShouldAddLayer(q.Last, b.side, b.ledger, gcfg)
	if d.entry.Add {
		d.entry.Volume = e.normalize(d.entry.Volume)
	}
	return d, nil
}

func (e *Engine) contain(b *sideBook, q market.Quote, component string, err error) error {
	metrics.ContainedFailures.WithLabelValues(component).Inc()
	e.log.Error("evaluation failed, state unchanged",
		zap.Stringer("side", b.side),
		zap.Float64("price", q.Last),
		zap.String("component", component),
		zap.Error(err))
	return errors.Wrapf(err, "engine: %s %s", b.side, component)
}

func (e *Engine) normalize(v float64) float64 {
	in := e.cfg.Instrument
	if in.VolumeStep <= 0 {
		return v
	}
	return risk.NormalizeVolume(v, in.VolumeStep, in.MinVolume, in.MaxVolume)
}

// stopDistance is the loss per unit the first layer is sized against. It is
// the configured trailing distance even when ArmAtEntry is false and no stop
// rests there yet, so planned_risk is nominal until the trail arms.
func (e *Engine) stopDistance(in trailing.Inputs) float64 {
	p := e.cfg.Trailing
	if p.Modes.Has(trailing.Fixed) && p.FixedDistance > 0 {
		return p.FixedDistance
	}
	if p.Modes.Has(trailing.AtrScaled) && in.ATR.Ready {
		return in.ATR.Value * p.AtrMultiplier
	}
	return 0
}

func (e *Engine) sizeBase(ctx context.Context, in trailing.Inputs) (float64, error) {
	src := e.venue.(broker.AccountSource)
	acct, err := src.Account(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "account")
	}
	metrics.EquityGauge.Set(acct.Equity)

	inst := e.cfg.Instrument
	dist := e.stopDistance(in)
	v, err := risk.ComputeVolume(risk.Inputs{
		Equity:       acct.Equity,
		RiskPercent:  e.cfg.RiskPercent,
		StopDistance: dist,
		PriceStep:    inst.PriceStep,
		StepPrice:    inst.StepPrice,
		VolumeStep:   inst.VolumeStep,
		MinVolume:    inst.MinVolume,
		MaxVolume:    inst.MaxVolume,
	})
	if err != nil {
		return 0, err
	}

	// rounding and the volume bounds move the real risk off the target
	planned := risk.PlannedRisk(v, 0, dist, inst.PriceStep, inst.StepPrice)
	e.log.Debug("sized first layer",
		zap.Float64("volume", v),
		zap.Float64("stop_distance", dist),
		zap.Float64("planned_risk", planned),
		zap.Float64("risk_pct", risk.RiskPct(planned, acct.Equity)),
		zap.Bool("stop_at_entry", e.cfg.Trailing.ArmAtEntry))
	return v, nil
}

func (e *Engine) placeEntry(ctx context.Context, b *sideBook, d grid.Decision, q market.Quote) error {
	id, err := e.venue.PlaceMarketOrder(ctx, b.side, d.Volume)
	if err != nil {
		if errors.Is(err, broker.ErrOrderRejected) {
			metrics.OrdersRejected.WithLabelValues(b.side.String()).Inc()
			e.log.Warn("entry rejected",
				zap.Stringer("side", b.side), zap.Float64("volume", d.Volume), zap.Error(err))
			return nil
		}
		return errors.Wrapf(err, "engine: %s entry layer %d", b.side, d.Layer)
	}

	if d.Layer == 0 {
		b.base = d.Volume
	}
	e.orders[id] = &pendingOrder{id: id, kind: broker.KindEntry, side: b.side, volume: d.Volume, layer: d.Layer}
	metrics.OrdersSubmitted.WithLabelValues(broker.KindEntry.String(), b.side.String()).Inc()
	e.log.Info("entry order placed",
		zap.Stringer("side", b.side),
		zap.String("order", id),
		zap.Int("layer", d.Layer),
		zap.Float64("volume", d.Volume),
		zap.Float64("price", q.Last),
		zap.String("reason", d.Reason))
	return nil
}

// closeAll cancels every working order for the side, then asks the venue to
// close it. State is cleared when the closing fills arrive.
func (e *Engine) closeAll(ctx context.Context, b *sideBook, reason string, q market.Quote) error {
	for id, o := range e.orders {
		if o.side != b.side || o.kind == broker.KindClose {
			continue
		}
		if err := e.cancel(ctx, id); err != nil {
			return err
		}
	}
	if b.stopOrder != "" {
		if err := e.cancel(ctx, b.stopOrder); err != nil {
			return err
		}
		b.stopOrder = ""
	}

	id, err := e.venue.ClosePosition(ctx, b.side)
	if err != nil {
		return errors.Wrapf(err, "engine: close %s", b.side)
	}
	b.closing = true
	e.orders[id] = &pendingOrder{id: id, kind: broker.KindClose, side: b.side, volume: b.ledger.AggregateVolume()}

	metrics.OrdersSubmitted.WithLabelValues(broker.KindClose.String(), b.side.String()).Inc()
	metrics.Exits.WithLabelValues(b.side.String(), reason).Inc()
	e.log.Info("closing side",
		zap.Stringer("side", b.side),
		zap.String("order", id),
		zap.String("reason", reason),
		zap.Float64("price", q.Last),
		zap.Float64("volume", b.ledger.AggregateVolume()))
	return nil
}

func (e *Engine) cancel(ctx context.Context, id string) error {
	err := e.venue.CancelOrder(ctx, id)
	if err != nil && !errors.Is(err, broker.ErrUnknownOrder) {
		return errors.Wrapf(err, "engine: cancel %s", id)
	}
	delete(e.orders, id)
	e.log.Debug("order cancelled", zap.String("order", id))
	return nil
}

// syncStopOrder mirrors the stored stop as one resting venue order covering
// the whole side.
func (e *Engine) syncStopOrder(ctx context.Context, b *sideBook) error {
	if !b.trail.Stop.Ready || b.ledger.Empty() || b.closing {
		return nil
	}
	vol := b.ledger.AggregateVolume()
	if b.stopOrder != "" && b.stopPrice == b.trail.Stop.Value && b.stopVol == vol {
		return nil
	}
	if b.stopOrder != "" {
		if err := e.cancel(ctx, b.stopOrder); err != nil {
			return err
		}
		b.stopOrder = ""
	}

	id, err := e.venue.PlaceStopOrder(ctx, b.side, vol, b.trail.Stop.Value)
	if err != nil {
		if errors.Is(err, broker.ErrOrderRejected) {
			metrics.OrdersRejected.WithLabelValues(b.side.String()).Inc()
			e.log.Warn("stop order rejected, falling back to price checks",
				zap.Stringer("side", b.side), zap.Float64("stop", b.trail.Stop.Value), zap.Error(err))
			return nil
		}
		return errors.Wrapf(err, "engine: %s stop order", b.side)
	}
	b.stopOrder, b.stopPrice, b.stopVol = id, b.trail.Stop.Value, vol
	e.orders[id] = &pendingOrder{id: id, kind: broker.KindStop, side: b.side, volume: vol, price: b.stopPrice}
	metrics.OrdersSubmitted.WithLabelValues(broker.KindStop.String(), b.side.String()).Inc()
	e.log.Info("stop order placed",
		zap.Stringer("side", b.side), zap.String("order", id),
		zap.Float64("stop", b.stopPrice), zap.Float64("volume", vol))
	return nil
}

func (e *Engine) entryWorking(s market.Side) bool {
	for _, o := range e.orders {
		if o.side == s && o.kind == broker.KindEntry {
			return true
		}
	}
	return false
}

func (e *Engine) observeStop(b *sideBook) {
	v := 0.0
	if b.trail.Stop.Ready {
		v = b.trail.Stop.Value
	}
	metrics.StopLevel.WithLabelValues(b.side.String()).Set(v)
}

func modeNames(ms []trailing.Mode) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.String())
	}
	return out
}
