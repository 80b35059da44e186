package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientRisk means the inputs leave nothing to size against.
var ErrInsufficientRisk = errors.New("risk: insufficient risk inputs")

// Inputs converts an equity / risk percent / stop distance triple into a
// volume for an instrument.
type Inputs struct {
	Equity       float64
	RiskPercent  float64 // 1.0 => 1% of equity
	StopDistance float64 // in price

	PriceStep float64 // minimum price increment
	StepPrice float64 // money per PriceStep per unit of volume

	VolumeStep float64
	MinVolume  float64
	MaxVolume  float64 // 0 = unbounded
}

// ComputeVolume sizes an order so a stop StopDistance away loses RiskPercent
// of equity. It returns 0 and ErrInsufficientRisk when there is nothing to
// risk.
func ComputeVolume(in Inputs) (float64, error) {
	switch {
	case !(in.Equity > 0):
		return 0, fmt.Errorf("%w: equity %.2f", ErrInsufficientRisk, in.Equity)
	case !(in.RiskPercent > 0):
		return 0, fmt.Errorf("%w: risk percent %.4f", ErrInsufficientRisk, in.RiskPercent)
	case !(in.StopDistance > 0):
		return 0, fmt.Errorf("%w: stop distance %.8f", ErrInsufficientRisk, in.StopDistance)
	case !(in.PriceStep > 0) || !(in.StepPrice > 0):
		return 0, fmt.Errorf("%w: price step %.8f step price %.8f", ErrInsufficientRisk, in.PriceStep, in.StepPrice)
	}

	riskAmount := in.Equity * in.RiskPercent / 100
	steps := in.StopDistance / in.PriceStep
	riskPerUnit := steps * in.StepPrice

	volume := riskAmount / riskPerUnit
	if math.IsNaN(volume) || math.IsInf(volume, 0) {
		return 0, fmt.Errorf("%w: volume %v", ErrInsufficientRisk, volume)
	}

	return NormalizeVolume(volume, in.VolumeStep, in.MinVolume, in.MaxVolume), nil
}

// NormalizeVolume rounds v to the nearest step (never below one step) and
// clamps it into [min, max]. A zero max leaves the upper side open.
func NormalizeVolume(v, step, min, max float64) float64 {
	if step > 0 {
		steps := math.Round(v/step + 1e-9)
		if steps < 1 {
			steps = 1
		}
		v = steps * step
		// strip binary noise such as 0.30000000000000004
		v = math.Round(v/step) * step
	}
	if min > 0 && v < min {
		v = min
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}
