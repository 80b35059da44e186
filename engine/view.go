package engine

import (
	"sort"

	"github.com/rustyeddy/gridtrader/broker"
	"github.com/rustyeddy/gridtrader/exit"
	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/trailing"
)

// SideView is a read-only summary of one side.
type SideView struct {
	Side         market.Side
	Volume       float64
	AveragePrice float64
	Layers       int
	Legs         int
	Phase        trailing.Phase
	Stop         trailing.Optional
	Lock         exit.LockState
	Closing      bool
	StopOrder    string
}

func (e *Engine) Side(s market.Side) SideView {
	b := e.books[s]
	v := SideView{
		Side:      s,
		Volume:    b.ledger.AggregateVolume(),
		Layers:    b.ledger.LayerCount(),
		Legs:      b.ledger.LegCount(),
		Phase:     b.trail.Phase,
		Stop:      b.trail.Stop,
		Lock:      b.lock,
		Closing:   b.closing,
		StopOrder: b.stopOrder,
	}
	v.AveragePrice, _ = b.ledger.AveragePrice()
	return v
}

// Legs returns a copy of the side's legs.
func (e *Engine) Legs(s market.Side) []ledger.Leg {
	return e.books[s].ledger.Legs()
}

// WorkingOrders lists the orders the engine is waiting on, sorted by id.
func (e *Engine) WorkingOrders() []broker.Order {
	out := make([]broker.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, broker.Order{ID: o.id, Kind: o.kind, Side: o.side, Volume: o.volume, Price: o.price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
