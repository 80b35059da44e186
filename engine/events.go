package engine

import (
	"time"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/trailing"
)

// Event is one input to Run. Exactly one of Bar, Tick, Fill or Reject is set.
type Event struct {
	Bar    *market.Candle
	Tick   *market.Tick
	Fill   *broker.Fill
	Reject *broker.Rejection

	// Inputs and Signal accompany market events.
	Inputs trailing.Inputs
	Signal market.Side
}

func BarEvent(c market.Candle, in trailing.Inputs, sig market.Side) Event {
	return Event{Bar: &c, Inputs: in, Signal: sig}
}

func TickEvent(t market.Tick, in trailing.Inputs, sig market.Side) Event {
	return Event{Tick: &t, Inputs: in, Signal: sig}
}

func FillEvent(f broker.Fill) Event { return Event{Fill: &f} }

func RejectEvent(r broker.Rejection) Event { return Event{Reject: &r} }

func (e Event) Time() time.Time {
	switch {
	case e.Bar != nil:
		return e.Bar.Time
	case e.Tick != nil:
		return e.Tick.Time
	case e.Fill != nil:
		return e.Fill.Time
	}
	return time.Time{}
}
