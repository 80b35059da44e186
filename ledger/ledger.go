// Package ledger records the confirmed entry legs of one side of a layered
// position and derives its aggregate exposure.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/gridtrader/market"
)

var (
	ErrInvalidVolume = errors.New("ledger: volume must be positive")
	ErrEmptyLedger   = errors.New("ledger: no open volume")
	ErrWrongSide     = errors.New("ledger: leg side does not match ledger")
)

// Leg is one confirmed fill. Legs are never mutated once recorded.
type Leg struct {
	Side     market.Side
	Price    float64
	Volume   float64
	OpenTime time.Time

	// Layer is the grid layer whose order produced this fill.
	Layer int
}

// Ledger is the ordered list of open legs for a single side.
// It is not safe for concurrent use.
type Ledger struct {
	side market.Side
	legs []Leg

	volume   float64
	notional float64
}

func New(side market.Side) *Ledger {
	return &Ledger{side: side}
}

func (l *Ledger) Side() market.Side { return l.side }

// AddLeg appends a confirmed fill.
func (l *Ledger) AddLeg(leg Leg) error {
	if leg.Volume <= 0 || math.IsNaN(leg.Volume) || math.IsInf(leg.Volume, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, leg.Volume)
	}
	if leg.Price <= 0 || math.IsNaN(leg.Price) || math.IsInf(leg.Price, 0) {
		return fmt.Errorf("ledger: invalid price %v", leg.Price)
	}
	if leg.Side == 0 {
		leg.Side = l.side
	}
	if leg.Side != l.side {
		return fmt.Errorf("%w: %s leg on %s ledger", ErrWrongSide, leg.Side, l.side)
	}

	l.legs = append(l.legs, leg)
	l.recompute()
	return nil
}

// Clear drops every leg. Call only after a confirmed full close.
func (l *Ledger) Clear() {
	l.legs = nil
	l.volume = 0
	l.notional = 0
}

// Reduce removes volume first-in first-out and returns the legs (or leg
// portions) that were closed. A partially consumed leg is replaced by a new
// leg carrying the remainder.
func (l *Ledger) Reduce(volume float64) ([]Leg, error) {
	if volume <= 0 || math.IsNaN(volume) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	if l.Empty() {
		return nil, ErrEmptyLedger
	}

	var closed []Leg
	remaining := volume
	i := 0
	for ; i < len(l.legs) && remaining > epsilon; i++ {
		leg := l.legs[i]
		if leg.Volume <= remaining+epsilon {
			closed = append(closed, leg)
			remaining -= leg.Volume
			continue
		}

		part := leg
		part.Volume = remaining
		closed = append(closed, part)

		rest := leg
		rest.Volume = leg.Volume - remaining
		l.legs[i] = rest
		remaining = 0
		break
	}
	l.legs = append([]Leg(nil), l.legs[i:]...)
	l.recompute()

	if l.volume <= epsilon {
		l.Clear()
	}
	return closed, nil
}

func (l *Ledger) AggregateVolume() float64 { return l.volume }

// AveragePrice is the volume-weighted entry price of all open legs.
func (l *Ledger) AveragePrice() (float64, error) {
	if l.volume <= 0 {
		return 0, ErrEmptyLedger
	}
	return l.notional / l.volume, nil
}

func (l *Ledger) Empty() bool { return len(l.legs) == 0 }

func (l *Ledger) LegCount() int { return len(l.legs) }

// LayerCount is the number of grid layers represented in the ledger. Several
// legs from one partially filled layer order count once.
func (l *Ledger) LayerCount() int {
	if len(l.legs) == 0 {
		return 0
	}
	seen := make(map[int]struct{}, len(l.legs))
	for _, leg := range l.legs {
		seen[leg.Layer] = struct{}{}
	}
	return len(seen)
}

// Last returns the most recently recorded leg.
func (l *Ledger) Last() (Leg, bool) {
	if len(l.legs) == 0 {
		return Leg{}, false
	}
	return l.legs[len(l.legs)-1], true
}

// First returns the oldest open leg.
func (l *Ledger) First() (Leg, bool) {
	if len(l.legs) == 0 {
		return Leg{}, false
	}
	return l.legs[0], true
}

// Legs returns a copy of the open legs, oldest first.
func (l *Ledger) Legs() []Leg {
	out := make([]Leg, len(l.legs))
	copy(out, l.legs)
	return out
}

// UnrealizedPL is the signed price move times volume against the average
// price, before any point value conversion.
func (l *Ledger) UnrealizedPL(mark float64) float64 {
	if l.volume <= 0 {
		return 0
	}
	return l.side.Sign() * (mark*l.volume - l.notional)
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.legs = l.Legs()
	return &c
}

const epsilon = 1e-12

func (l *Ledger) recompute() {
	var vol, notional float64
	for _, leg := range l.legs {
		vol += leg.Volume
		notional += leg.Price * leg.Volume
	}
	l.volume = vol
	l.notional = notional
}
