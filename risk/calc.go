package risk

import "math"

// PlannedRisk is the money lost if volume opened at entry is closed at stop.
// stepPrice is the money value of one priceStep move for one unit.
func PlannedRisk(volume, entry, stop, priceStep, stepPrice float64) float64 {
	if priceStep <= 0 {
		return 0
	}
	steps := math.Abs(entry-stop) / priceStep
	return math.Abs(volume) * steps * stepPrice
}

// RiskPct is planned risk as a percentage of equity.
func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return 100 * plannedRisk / equity
}
