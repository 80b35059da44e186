package engine

import (
	"fmt"
	"time"

	"github.com/rustyeddy/gridtrader/exit"
	"github.com/rustyeddy/gridtrader/grid"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/trailing"
)

// Config is fixed for the lifetime of an Engine.
type Config struct {
	Instrument market.Instrument
	Grid       grid.Config
	Exit       exit.Config
	Trailing   trailing.Params

	// RiskPercent > 0 sizes the first layer of each cycle from account
	// equity and the trailing stop distance. Later layers scale from it.
	RiskPercent float64

	// Sides that may open exposure. Empty means both.
	Sides []market.Side

	// RequireSignal opens a flat side only when the event carries a
	// matching signal.
	RequireSignal bool

	// StaleAfter marks data stale when no event arrived for this long.
	StaleAfter time.Duration

	// ReevaluateEvery re-checks exits and trailing stops on a timer in Run.
	ReevaluateEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		Grid:  grid.DefaultConfig(),
		Sides: []market.Side{market.Long},
	}
}

func (c Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if err := c.Exit.Validate(); err != nil {
		return err
	}
	if err := c.Trailing.Validate(); err != nil {
		return err
	}
	for _, s := range c.Sides {
		if !s.Valid() {
			return fmt.Errorf("engine: invalid side %v", s)
		}
	}
	if c.RiskPercent < 0 || c.RiskPercent > 100 {
		return fmt.Errorf("engine: risk percent must be in [0, 100], got %v", c.RiskPercent)
	}
	if c.StaleAfter < 0 || c.ReevaluateEvery < 0 {
		return fmt.Errorf("engine: durations must not be negative")
	}
	return nil
}

func (c Config) enabled(s market.Side) bool {
	if len(c.Sides) == 0 {
		return true
	}
	for _, x := range c.Sides {
		if x == s {
			return true
		}
	}
	return false
}
