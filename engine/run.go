package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridtrader/market"
)

// Handle dispatches one event.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	switch {
	case ev.Bar != nil:
		return e.OnBar(ctx, *ev.Bar, ev.Inputs, ev.Signal)
	case ev.Tick != nil:
		return e.OnTick(ctx, *ev.Tick, ev.Inputs, ev.Signal)
	case ev.Fill != nil:
		return e.OnFill(ctx, *ev.Fill)
	case ev.Reject != nil:
		e.OnReject(*ev.Reject)
		return nil
	}
	return errors.New("engine: empty event")
}

// Run is the live driver. Every event and every re-evaluation tick is
// handled on this goroutine, so no other code may call the engine while Run
// is active. Run returns when ctx is done or events is closed.
func (e *Engine) Run(ctx context.Context, events <-chan Event) error {
	var tick <-chan time.Time
	if e.cfg.ReevaluateEvery > 0 {
		t := time.NewTicker(e.cfg.ReevaluateEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.Handle(ctx, ev); err != nil {
				e.log.Warn("event failed", zap.Time("time", ev.Time()), zap.Error(err))
			}

		case <-tick:
			if err := e.Reevaluate(ctx); err != nil {
				e.log.Warn("re-evaluation failed", zap.Error(err))
			}
		}
	}
}

// Reevaluate re-checks exits and trailing stops against the last quote of
// each open side. No entries are placed. When no market event arrived within
// StaleAfter it does nothing and returns ErrStaleData.
func (e *Engine) Reevaluate(ctx context.Context) error {
	if e.lastArrival.IsZero() {
		return nil
	}
	if e.cfg.StaleAfter > 0 {
		if age := e.now().Sub(e.lastArrival); age > e.cfg.StaleAfter {
			e.log.Warn("market data stale, taking no action",
				zap.Duration("age", age), zap.Duration("stale_after", e.cfg.StaleAfter))
			return errors.Wrapf(ErrStaleData, "no market event for %s", age)
		}
	}

	var err error
	for _, s := range market.Sides {
		b := e.books[s]
		if b.ledger.Empty() {
			continue
		}
		if serr := e.step(ctx, b, b.lastQuote, b.lastInputs, 0, false); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
