package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/engine"
	"github.com/rustyeddy/gridtrader/indicators"
	"github.com/rustyeddy/gridtrader/journal"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/metrics"
	"github.com/rustyeddy/gridtrader/sim"
)

// Options controls how the runner behaves.
type Options struct {
	Engine     engine.Config
	Venue      sim.Config
	Indicators indicators.WindowConfig

	// TickPeriod is the candle length ticks are rolled into for the
	// indicator window. Zero means one minute.
	TickPeriod time.Duration

	// SettleAtEnd closes every open side at the last price once the feed is
	// exhausted.
	SettleAtEnd bool
}

// Runner drives the engine forward over a candle or tick feed.
type Runner struct {
	Engine *engine.Engine
	Venue  *sim.Venue
	Window *indicators.Window

	opts  Options
	log   *zap.Logger
	tally *tally

	res  Result
	peak float64
}

// NewRunner wires a simulated venue, an indicator window and an engine.
// Every venue record goes to j as well as the runner's own tally.
func NewRunner(opts Options, j journal.Journal, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if j == nil {
		j = journal.Discard
	}
	if opts.Venue.Instrument.Name == "" {
		opts.Venue.Instrument = opts.Engine.Instrument
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = time.Minute
	}

	w, err := indicators.NewWindow(opts.Indicators)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	t := &tally{}
	v := sim.New(opts.Venue, journal.Multi{j, t})
	eng, err := engine.New(opts.Engine, v, engine.WithLogger(log))
	if err != nil {
		return nil, err
	}

	r := &Runner{
		Engine: eng,
		Venue:  v,
		Window: w,
		opts:   opts,
		log:    log,
		tally:  t,
	}
	return r, nil
}

// listener forwards venue events into the engine.
type listener struct {
	ctx context.Context
	eng *engine.Engine
	log *zap.Logger
}

func (l listener) OnFill(f broker.Fill) {
	if err := l.eng.OnFill(l.ctx, f); err != nil {
		l.log.Warn("fill not applied", zap.String("order", f.OrderID), zap.Error(err))
	}
}

func (l listener) OnReject(r broker.Rejection) { l.eng.OnReject(r) }

func (r *Runner) start(ctx context.Context) {
	r.Venue.SetListener(listener{ctx: ctx, eng: r.Engine, log: r.log})
	acct, _ := r.Venue.Account(ctx)
	r.res = Result{StartBalance: acct.Balance}
	r.peak = acct.Equity
}

// Run executes the candle loop:
//  1. read the next candle
//  2. the venue fills queued orders and crossed stops on it
//  3. the indicator window advances
//  4. the engine evaluates the closed candle
func (r *Runner) Run(ctx context.Context, feed CandleFeed) (Result, error) {
	if feed == nil {
		return Result{}, fmt.Errorf("backtest: feed is required")
	}
	defer feed.Close()
	r.start(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return r.res, err
		}
		c, ok, err := feed.Next()
		if err != nil {
			return r.res, err
		}
		if !ok {
			break
		}
		if !c.Valid() {
			r.log.Warn("skipping invalid candle", zap.Time("time", c.Time))
			continue
		}
		r.mark(c.Time)

		if err := r.Venue.ProcessBar(c); err != nil {
			r.log.Warn("journal equity", zap.Error(err))
		}
		r.Window.Update(c)

		// Evaluation failures are contained and logged inside the engine.
		if err := r.Engine.OnBar(ctx, c, r.Window.Inputs(), r.Window.Signal()); err != nil {
			r.log.Debug("bar evaluation", zap.Time("time", c.Time), zap.Error(err))
		}
		r.observe(ctx)
	}
	return r.finish(ctx), nil
}

// RunTicks executes the tick loop. Each quote goes to the venue and then to
// the engine; ticks are also rolled into TickPeriod candles that advance the
// indicator window once complete.
func (r *Runner) RunTicks(ctx context.Context, feed TickFeed) (Result, error) {
	if feed == nil {
		return Result{}, fmt.Errorf("backtest: feed is required")
	}
	defer feed.Close()
	r.start(ctx)
	cb := &candleBuilder{period: r.opts.TickPeriod}

	for {
		if err := ctx.Err(); err != nil {
			return r.res, err
		}
		t, ok, err := feed.Next()
		if err != nil {
			return r.res, err
		}
		if !ok {
			break
		}
		if !t.Valid() {
			r.log.Warn("skipping invalid tick", zap.Time("time", t.Time))
			continue
		}
		r.mark(t.Time)

		if err := r.Venue.ProcessTick(t); err != nil {
			r.log.Warn("journal equity", zap.Error(err))
		}
		if c, done := cb.add(t); done {
			r.Window.Update(c)
		}

		if err := r.Engine.OnTick(ctx, t, r.Window.Inputs(), r.Window.Signal()); err != nil {
			r.log.Debug("tick evaluation", zap.Time("time", t.Time), zap.Error(err))
		}
		r.observe(ctx)
	}
	return r.finish(ctx), nil
}

func (r *Runner) mark(tm time.Time) {
	if r.res.Start.IsZero() {
		r.res.Start = tm
	}
	r.res.End = tm
	r.res.Bars++
}

func (r *Runner) observe(ctx context.Context) {
	for _, s := range market.Sides {
		if n := r.Engine.Side(s).Layers; n > r.res.MaxLayers {
			r.res.MaxLayers = n
		}
	}
	acct, _ := r.Venue.Account(ctx)
	metrics.EquityGauge.Set(acct.Equity)
	r.peak, r.res.MaxDrawdown = drawdown(r.peak, acct.Equity, r.res.MaxDrawdown)
}

func (r *Runner) finish(ctx context.Context) Result {
	if r.opts.SettleAtEnd {
		if err := r.Venue.Settle(); err != nil {
			r.log.Warn("journal equity", zap.Error(err))
		}
		r.observe(ctx)
	}

	acct, _ := r.Venue.Account(ctx)
	res := r.res
	res.EndBalance = acct.Balance
	res.Equity = acct.Equity
	if r.peak > 0 {
		res.MaxDDPct = res.MaxDrawdown / r.peak * 100
	}
	r.tally.fill(&res)
	return res
}

func drawdown(peak, equity, worst float64) (float64, float64) {
	if equity > peak {
		peak = equity
	}
	if dd := peak - equity; dd > worst {
		worst = dd
	}
	return peak, worst
}

// tally is a journal that keeps closed-cycle statistics in memory.
type tally struct {
	trades      int
	wins        int
	losses      int
	grossProfit float64
	grossLoss   float64
	reasons     map[string]int
}

func (t *tally) RecordTrade(rec journal.TradeRecord) error {
	t.trades++
	switch {
	case rec.RealizedPL > 0:
		t.wins++
		t.grossProfit += rec.RealizedPL
	case rec.RealizedPL < 0:
		t.losses++
		t.grossLoss -= rec.RealizedPL
	}
	if t.reasons == nil {
		t.reasons = make(map[string]int)
	}
	t.reasons[rec.Reason]++
	return nil
}

func (t *tally) RecordFill(journal.FillRecord) error         { return nil }
func (t *tally) RecordEquity(journal.EquitySnapshot) error { return nil }
func (t *tally) Close() error                              { return nil }

func (t *tally) fill(res *Result) {
	res.Trades = t.trades
	res.Wins = t.wins
	res.Losses = t.losses
	res.GrossProfit = t.grossProfit
	res.GrossLoss = t.grossLoss
	res.Reasons = t.reasons
}
