package trailing

import (
	"fmt"

	"github.com/rustyeddy/gridtrader/market"
)

// Phase is the lifecycle of a side's trailing stop.
type Phase uint8

const (
	Inactive Phase = iota
	Armed
	Trailing
)

func (p Phase) String() string {
	switch p {
	case Inactive:
		return "inactive"
	case Armed:
		return "armed"
	case Trailing:
		return "trailing"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Optional is a value that may not be available yet.
type Optional struct {
	Value float64
	Ready bool
}

func Some(v float64) Optional { return Optional{Value: v, Ready: true} }

func (o Optional) String() string {
	if !o.Ready {
		return "-"
	}
	return fmt.Sprintf("%.5f", o.Value)
}

// Inputs are indicator values supplied for one evaluation.
type Inputs struct {
	ATR          Optional
	ChannelUpper Optional
	ChannelLower Optional
	External     Optional
}

// Params configures the stop computation.
type Params struct {
	Modes         Mode
	FixedDistance float64
	AtrMultiplier float64
	ChannelBuffer float64

	// ArmAtEntry stores Fixed and AtrScaled stops measured from the entry
	// as soon as the side opens. When false those stops are only stored
	// once they lie beyond the average price on the profit side.
	ArmAtEntry bool

	// StopOrders mirrors the stop as a resting venue order instead of
	// checking it against incoming prices.
	StopOrders bool
}

func (p Params) Validate() error {
	if p.Modes == 0 {
		return nil
	}
	if p.Modes.Has(Fixed) && !(p.FixedDistance > 0) {
		return fmt.Errorf("trailing: fixed_distance must be > 0, got %v", p.FixedDistance)
	}
	if p.Modes.Has(AtrScaled) && !(p.AtrMultiplier > 0) {
		return fmt.Errorf("trailing: atr_multiplier must be > 0, got %v", p.AtrMultiplier)
	}
	if p.Modes.Has(Channel) && p.ChannelBuffer < 0 {
		return fmt.Errorf("trailing: channel_buffer must be >= 0, got %v", p.ChannelBuffer)
	}
	return nil
}

// State is one side's trailing stop. The zero value is Inactive.
type State struct {
	Side      market.Side
	Phase     Phase
	Entry     float64
	Reference float64 // most favorable price since the side opened
	Stop      Optional
}

func (s State) Active() bool { return s.Phase != Inactive }

// Result describes one evaluation.
type Result struct {
	Stop     Optional
	Changed  bool
	NotReady []Mode
	Deferred bool // external value not yet on the unfavorable side of entry
	Exit     bool
}

// Arm starts trailing for a side whose first leg filled at entry.
func (p Params) Arm(side market.Side, entry float64, q market.Quote, in Inputs) (State, Result) {
	st := State{
		Side:      side,
		Phase:     Armed,
		Entry:     entry,
		Reference: entry,
	}
	if fav := q.Favorable(side); fav > 0 && side.Better(fav, entry) {
		st.Reference = fav
	}
	return p.ratchet(st, entry, q, in)
}

// Advance moves the reference extreme and ratchets the stop for one
// evaluation. avg is the side's current average price. The stop never
// loosens.
func (p Params) Advance(st State, avg float64, q market.Quote, in Inputs) (State, Result) {
	if !st.Active() {
		return st, Result{}
	}
	if fav := q.Favorable(st.Side); fav > 0 && st.Side.Better(fav, st.Reference) {
		st.Reference = fav
	}
	st, res := p.ratchet(st, avg, q, in)
	if st.Stop.Ready {
		st.Phase = Trailing
	}
	return st, res
}

// Check reports whether q crossed the stored stop.
func Check(st State, q market.Quote) bool {
	if !st.Active() || !st.Stop.Ready {
		return false
	}
	adverse := q.Adverse(st.Side)
	if st.Side == market.Long {
		return adverse <= st.Stop.Value
	}
	return adverse >= st.Stop.Value
}

// Step checks the stored stop against q and, when it holds, advances it.
// A triggered stop is returned unchanged with Exit set; the caller resets
// the state once the close is confirmed.
func (p Params) Step(st State, avg float64, q market.Quote, in Inputs) (State, Result) {
	if Check(st, q) {
		return st, Result{Stop: st.Stop, Exit: true}
	}
	return p.Advance(st, avg, q, in)
}

// Reset returns the Inactive state.
func Reset() State { return State{} }

// ratchet stores the tightest candidate lying strictly on the losing side of
// the current mark q.Last.
func (p Params) ratchet(st State, avg float64, q market.Quote, in Inputs) (State, Result) {
	res := Result{Stop: st.Stop}
	best, ok := Optional{}, false

	consider := func(c float64) {
		if !ok || st.Side.Better(c, best.Value) {
			best, ok = Some(c), true
		}
	}

	for _, m := range AllModes {
		if !p.Modes.Has(m) {
			continue
		}
		c, ready, deferred := p.candidate(m, st, avg, in)
		if deferred {
			res.Deferred = true
			continue
		}
		if !ready {
			res.NotReady = append(res.NotReady, m)
			continue
		}
		if !c.Ready {
			continue
		}
		if q.Last > 0 && !st.Side.Better(q.Last, c.Value) {
			if m == ExternalIndicator {
				res.Deferred = true
			}
			continue
		}
		consider(c.Value)
	}

	if ok && (!st.Stop.Ready || st.Side.Better(best.Value, st.Stop.Value)) {
		st.Stop = best
		res.Stop = best
		res.Changed = true
	}
	return st, res
}

// candidate returns the stop proposed by one mode. A ready mode may still
// propose nothing (c.Ready false) when its stop is not yet on the profit
// side of avg.
func (p Params) candidate(m Mode, st State, avg float64, in Inputs) (c Optional, ready, deferred bool) {
	sign := st.Side.Sign()

	distanceFrom := func(d float64) Optional {
		ref := st.Reference
		v := ref - sign*d
		if !p.ArmAtEntry && !st.Side.Better(v, avg) {
			return Optional{}
		}
		return Some(v)
	}

	switch m {
	case Fixed:
		return distanceFrom(p.FixedDistance), true, false

	case AtrScaled:
		if !in.ATR.Ready || !(in.ATR.Value > 0) {
			return Optional{}, false, false
		}
		return distanceFrom(in.ATR.Value * p.AtrMultiplier), true, false

	case Channel:
		if st.Side == market.Long {
			if !in.ChannelLower.Ready {
				return Optional{}, false, false
			}
			return Some(in.ChannelLower.Value - p.ChannelBuffer), true, false
		}
		if !in.ChannelUpper.Ready {
			return Optional{}, false, false
		}
		return Some(in.ChannelUpper.Value + p.ChannelBuffer), true, false

	case ExternalIndicator:
		if !in.External.Ready {
			return Optional{}, false, false
		}
		v := in.External.Value
		// until the first stop is stored the value must sit strictly on
		// the losing side of entry
		if st.Phase == Armed && !st.Stop.Ready && !st.Side.Better(st.Entry, v) {
			return Optional{}, true, true
		}
		return Some(v), true, false
	}
	return Optional{}, false, false
}
