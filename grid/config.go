// Package grid decides when a layered position should add another layer and
// how large that layer is.
package grid

import (
	"fmt"
	"math"
)

// Config is the entry sizing and spacing policy. It is fixed for the
// lifetime of an engine.
type Config struct {
	BaseVolume       float64 `json:"base_volume" yaml:"base_volume" mapstructure:"base_volume"`
	VolumeMultiplier float64 `json:"volume_multiplier" yaml:"volume_multiplier" mapstructure:"volume_multiplier"`
	PriceGap         float64 `json:"price_gap" yaml:"price_gap" mapstructure:"price_gap"`
	GapMultiplier    float64 `json:"gap_multiplier" yaml:"gap_multiplier" mapstructure:"gap_multiplier"`
	MaxLayers        int     `json:"max_layers" yaml:"max_layers" mapstructure:"max_layers"`
}

// ConfigurationError reports a degenerate sizing or spacing parameter.
// Engines refuse to start when one is returned.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("grid config: %s=%v %s", e.Field, e.Value, e.Reason)
}

func DefaultConfig() Config {
	return Config{
		BaseVolume:       1,
		VolumeMultiplier: 1,
		PriceGap:         10,
		GapMultiplier:    1,
		MaxLayers:        5,
	}
}

// Validate returns the first degenerate field as a *ConfigurationError.
func (c Config) Validate() error {
	switch {
	case c.MaxLayers <= 0:
		return &ConfigurationError{Field: "max_layers", Value: c.MaxLayers, Reason: "must be positive"}
	case !positive(c.BaseVolume):
		return &ConfigurationError{Field: "base_volume", Value: c.BaseVolume, Reason: "must be positive"}
	case !positive(c.VolumeMultiplier):
		return &ConfigurationError{Field: "volume_multiplier", Value: c.VolumeMultiplier, Reason: "must be positive"}
	case !positive(c.GapMultiplier):
		return &ConfigurationError{Field: "gap_multiplier", Value: c.GapMultiplier, Reason: "must be positive"}
	case c.PriceGap < 0 || math.IsNaN(c.PriceGap):
		return &ConfigurationError{Field: "price_gap", Value: c.PriceGap, Reason: "must not be negative"}
	case c.PriceGap == 0 && c.MaxLayers > 1:
		return &ConfigurationError{Field: "price_gap", Value: c.PriceGap, Reason: "must be positive when max_layers > 1"}
	}
	return nil
}

// WithBaseVolume returns a copy using a different first-layer volume.
func (c Config) WithBaseVolume(v float64) Config {
	c.BaseVolume = v
	return c
}

// LayerVolume is the volume of the layer at index i.
func (c Config) LayerVolume(i int) float64 {
	return c.BaseVolume * math.Pow(c.VolumeMultiplier, float64(i))
}

// LayerGap is the adverse distance required before adding layer i.
func (c Config) LayerGap(i int) float64 {
	return c.PriceGap * math.Pow(c.GapMultiplier, float64(i))
}

// MaxExposure is the total volume when every layer is filled.
func (c Config) MaxExposure() float64 {
	var total float64
	for i := 0; i < c.MaxLayers; i++ {
		total += c.LayerVolume(i)
	}
	return total
}

func positive(x float64) bool {
	return x > 0 && !math.IsNaN(x) && !math.IsInf(x, 0)
}
