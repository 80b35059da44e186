package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
)

var (
	ErrOrderRejected = errors.New("order rejected")
	ErrUnknownOrder  = errors.New("unknown order")
)

// Venue executes the engine's order intents. Every call names the position
// side it acts on: PlaceMarketOrder adds to that side, PlaceStopOrder and
// ClosePosition reduce it. Fills arrive later through the venue's own
// channel; a nil error only means the request was accepted.
type Venue interface {
	PlaceMarketOrder(ctx context.Context, side market.Side, volume float64) (string, error)
	PlaceStopOrder(ctx context.Context, side market.Side, volume, price float64) (string, error)
	CancelOrder(ctx context.Context, id string) error
	ClosePosition(ctx context.Context, side market.Side) (string, error)
}

// AccountSource is implemented by venues that can report equity.
type AccountSource interface {
	Account(ctx context.Context) (Account, error)
}

type Account struct {
	ID         string
	Currency   string
	Balance    float64
	Equity     float64
	MarginUsed float64
	FreeMargin float64
}

// Fill confirms executed volume. Closing fills reduce the side, entry fills
// add to it. Final marks the last fill for OrderID.
type Fill struct {
	OrderID string
	Side    market.Side
	Price   float64
	Volume  float64
	Time    time.Time
	Closing bool
	Final   bool
}

type Rejection struct {
	OrderID string
	Reason  string
}

func (r Rejection) Err() error {
	return fmt.Errorf("%w: %s: %s", ErrOrderRejected, r.OrderID, r.Reason)
}

type OrderKind uint8

const (
	KindEntry OrderKind = iota + 1
	KindStop
	KindClose
)

func (k OrderKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindStop:
		return "stop"
	case KindClose:
		return "close"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Order is a working order as reported by the venue.
type Order struct {
	ID     string
	Kind   OrderKind
	Side   market.Side
	Volume float64
	Price  float64 // trigger price for stops
}

// Position is the venue's view of one side. Legs is empty when the venue
// only knows the aggregate.
type Position struct {
	Side         market.Side
	Volume       float64
	AveragePrice float64
	Legs         []ledger.Leg
}

// Snapshot is what a venue reports on restart.
type Snapshot struct {
	Instrument string
	Time       time.Time
	Positions  []Position
	Orders     []Order
}

// Position returns the reported position for side, if any.
func (s Snapshot) Position(side market.Side) (Position, bool) {
	for _, p := range s.Positions {
		if p.Side == side && p.Volume > 0 {
			return p, true
		}
	}
	return Position{}, false
}

// OrdersFor returns the working orders for side.
func (s Snapshot) OrdersFor(side market.Side) []Order {
	var out []Order
	for _, o := range s.Orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}
