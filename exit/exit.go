// Package exit folds profit target, stop-loss, breakeven lock and trailing
// signals into one close decision.
package exit

import (
	"fmt"

	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/trailing"
)

// Config holds money and distance targets. Zero disables a target.
type Config struct {
	ProfitTargetMoney float64 `json:"profit_target_money" yaml:"profit_target_money" mapstructure:"profit_target_money"`
	StopLossMoney     float64 `json:"stop_loss_money" yaml:"stop_loss_money" mapstructure:"stop_loss_money"`
	LockDownDistance  float64 `json:"lock_down_distance" yaml:"lock_down_distance" mapstructure:"lock_down_distance"`
	LockOffset        float64 `json:"lock_offset" yaml:"lock_offset" mapstructure:"lock_offset"`

	// PointValue converts a one-unit price move on one unit of volume into
	// money. Zero means 1.
	PointValue float64 `json:"point_value" yaml:"point_value" mapstructure:"point_value"`
}

func (c Config) Validate() error {
	if c.ProfitTargetMoney < 0 {
		return fmt.Errorf("exit: profit_target_money must be >= 0, got %v", c.ProfitTargetMoney)
	}
	if c.StopLossMoney < 0 {
		return fmt.Errorf("exit: stop_loss_money must be >= 0, got %v", c.StopLossMoney)
	}
	if c.LockDownDistance < 0 {
		return fmt.Errorf("exit: lock_down_distance must be >= 0, got %v", c.LockDownDistance)
	}
	if c.LockDownDistance > 0 && c.LockOffset >= c.LockDownDistance {
		return fmt.Errorf("exit: lock_offset %v must be below lock_down_distance %v", c.LockOffset, c.LockDownDistance)
	}
	if c.PointValue < 0 {
		return fmt.Errorf("exit: point_value must be >= 0, got %v", c.PointValue)
	}
	return nil
}

func (c Config) pointValue() float64 {
	if c.PointValue > 0 {
		return c.PointValue
	}
	return 1
}

// LockState is a side's breakeven lock.
type LockState struct {
	Armed bool
	Price float64
}

// Target is recomputed on every evaluation and never stored.
type Target struct {
	TakeProfitPrice trailing.Optional
	StopLossPrice   trailing.Optional
	LockPrice       trailing.Optional
}

type Action uint8

const (
	None Action = iota
	CloseAll
)

func (a Action) String() string {
	if a == CloseAll {
		return "close_all"
	}
	return "none"
}

const (
	ReasonProfitTarget = "profit target"
	ReasonStopLoss     = "stop loss"
	ReasonLock         = "breakeven lock"
	ReasonTrailing     = "trailing stop"
)

// Input is everything one evaluation reads.
type Input struct {
	Side         market.Side
	AveragePrice float64
	Volume       float64
	Quote        market.Quote
	Trailing     bool // trailing stop crossed
	Lock         LockState
	Targets      Config
}

// Result carries the decision plus the lock the caller should keep.
type Result struct {
	Action  Action
	Reason  string
	Lock    LockState
	Targets Target
}

// Unrealized is the open money result of the side at the quote's last price.
func Unrealized(in Input) float64 {
	return (in.Quote.Last - in.AveragePrice) * in.Volume * in.Side.Sign() * in.Targets.pointValue()
}

// Evaluate decides whether the side should be flattened. Checks run in a
// fixed order: profit target, stop-loss, lock, trailing. The first match
// wins. Evaluate has no side effects; the returned Lock is to be committed
// by the caller.
func Evaluate(in Input) Result {
	res := Result{Lock: in.Lock}
	if in.Volume <= 0 {
		return res
	}

	cfg := in.Targets
	sign := in.Side.Sign()

	wasArmed := in.Lock.Armed
	if !wasArmed && cfg.LockDownDistance > 0 {
		excursion := sign * (in.Quote.Favorable(in.Side) - in.AveragePrice)
		if excursion >= cfg.LockDownDistance {
			res.Lock = LockState{Armed: true, Price: in.AveragePrice + sign*cfg.LockOffset}
		}
	}
	res.Targets = targets(in, res.Lock)

	pl := Unrealized(in)
	switch {
	case cfg.ProfitTargetMoney > 0 && pl >= cfg.ProfitTargetMoney:
		res.Action, res.Reason = CloseAll, ReasonProfitTarget
	case cfg.StopLossMoney > 0 && pl <= -cfg.StopLossMoney:
		res.Action, res.Reason = CloseAll, ReasonStopLoss
	case wasArmed && lockCrossed(in.Side, in.Quote, in.Lock.Price):
		res.Action, res.Reason = CloseAll, ReasonLock
	case in.Trailing:
		res.Action, res.Reason = CloseAll, ReasonTrailing
	}
	return res
}

func lockCrossed(side market.Side, q market.Quote, lock float64) bool {
	adverse := q.Adverse(side)
	if side == market.Long {
		return adverse <= lock
	}
	return adverse >= lock
}

func targets(in Input, lock LockState) Target {
	var t Target
	sign := in.Side.Sign()
	perUnit := in.Volume * in.Targets.pointValue()
	if in.Targets.ProfitTargetMoney > 0 && perUnit > 0 {
		t.TakeProfitPrice = trailing.Some(in.AveragePrice + sign*in.Targets.ProfitTargetMoney/perUnit)
	}
	if in.Targets.StopLossMoney > 0 && perUnit > 0 {
		t.StopLossPrice = trailing.Some(in.AveragePrice - sign*in.Targets.StopLossMoney/perUnit)
	}
	if lock.Armed {
		t.LockPrice = trailing.Some(lock.Price)
	}
	return t
}
