// Package indicators computes the volatility, channel and trend values that
// feed trailing stops and the optional entry signal. The math is TA-Lib's.
package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/trailing"
)

// WindowConfig selects which values a Window computes. A zero period turns
// the value off; it is then reported as not ready.
type WindowConfig struct {
	Size            int     `json:"size" yaml:"size" mapstructure:"size"`
	ATRPeriod       int     `json:"atr_period" yaml:"atr_period" mapstructure:"atr_period"`
	ChannelPeriod   int     `json:"channel_period" yaml:"channel_period" mapstructure:"channel_period"`
	SARAcceleration float64 `json:"sar_acceleration" yaml:"sar_acceleration" mapstructure:"sar_acceleration"`
	SARMaximum      float64 `json:"sar_maximum" yaml:"sar_maximum" mapstructure:"sar_maximum"`

	// FastPeriod and SlowPeriod drive the EMA cross entry signal.
	FastPeriod int `json:"fast_period" yaml:"fast_period" mapstructure:"fast_period"`
	SlowPeriod int `json:"slow_period" yaml:"slow_period" mapstructure:"slow_period"`
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Size:            200,
		ATRPeriod:       14,
		ChannelPeriod:   20,
		SARAcceleration: 0.02,
		SARMaximum:      0.2,
	}
}

func (c WindowConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.Size)
	}
	if c.ATRPeriod < 0 || c.ChannelPeriod < 0 || c.FastPeriod < 0 || c.SlowPeriod < 0 {
		return fmt.Errorf("indicator periods must not be negative")
	}
	if c.SARAcceleration < 0 || c.SARMaximum < c.SARAcceleration {
		return fmt.Errorf("sar: need 0 <= acceleration <= maximum, got %v/%v", c.SARAcceleration, c.SARMaximum)
	}
	if (c.FastPeriod == 0) != (c.SlowPeriod == 0) {
		return fmt.Errorf("signal: fast_period and slow_period must be set together")
	}
	if c.FastPeriod > 0 && c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("signal: fast_period %d must be below slow_period %d", c.FastPeriod, c.SlowPeriod)
	}
	longest := max(c.ATRPeriod+1, c.ChannelPeriod, c.SlowPeriod)
	if c.Size < longest {
		return fmt.Errorf("window size %d shorter than longest period %d", c.Size, longest)
	}
	return nil
}

// Window keeps the most recent closed candles and computes indicator values
// over them with TA-Lib.
type Window struct {
	cfg    WindowConfig
	highs  []float64
	lows   []float64
	closes []float64
}

func NewWindow(cfg WindowConfig) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Window{
		cfg:    cfg,
		highs:  make([]float64, 0, cfg.Size),
		lows:   make([]float64, 0, cfg.Size),
		closes: make([]float64, 0, cfg.Size),
	}, nil
}

func (w *Window) Update(c market.Candle) {
	w.highs = appendBounded(w.highs, c.High, w.cfg.Size)
	w.lows = appendBounded(w.lows, c.Low, w.cfg.Size)
	w.closes = appendBounded(w.closes, c.Close, w.cfg.Size)
}

func appendBounded(s []float64, v float64, size int) []float64 {
	if len(s) == size {
		copy(s, s[1:])
		s = s[:size-1]
	}
	return append(s, v)
}

func (w *Window) Len() int { return len(w.closes) }

func (w *Window) Reset() {
	w.highs = w.highs[:0]
	w.lows = w.lows[:0]
	w.closes = w.closes[:0]
}

// Inputs returns the trailing inputs for the latest candle. The external
// input is the parabolic SAR.
func (w *Window) Inputs() trailing.Inputs {
	var in trailing.Inputs
	n := len(w.closes)

	if p := w.cfg.ATRPeriod; p > 0 && n > p {
		in.ATR = trailing.Some(last(talib.Atr(w.highs, w.lows, w.closes, p)))
	}
	if p := w.cfg.ChannelPeriod; p > 0 && n >= p {
		in.ChannelUpper = trailing.Some(last(talib.Max(w.highs, p)))
		in.ChannelLower = trailing.Some(last(talib.Min(w.lows, p)))
	}
	if w.cfg.SARAcceleration > 0 && n >= 2 {
		in.External = trailing.Some(last(talib.Sar(w.highs, w.lows, w.cfg.SARAcceleration, w.cfg.SARMaximum)))
	}
	return in
}

// Signal is the EMA cross direction: Long while the fast average is above
// the slow one, Short while below, and zero when disabled or warming up.
func (w *Window) Signal() market.Side {
	p := w.cfg.SlowPeriod
	if p == 0 || len(w.closes) < p {
		return 0
	}
	fast := last(talib.Ema(w.closes, w.cfg.FastPeriod))
	slow := last(talib.Ema(w.closes, p))
	switch {
	case fast > slow:
		return market.Long
	case fast < slow:
		return market.Short
	}
	return 0
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}
