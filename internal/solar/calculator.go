package solar

import (
	"math"
	"strconv"

	"heating_analytics/internal/model"
)

// UnitCoeffs maps unit -> tempKey -> learned solar coefficient (kW at
// full sun).
type UnitCoeffs map[string]map[string]float64

// Calculator converts sun geometry and cloud cover into a solar factor and
// applies learned per-unit coefficients with saturation.
type Calculator struct {
	Enabled      bool
	Azimuth      float64 // facade azimuth the windows face, degrees
	BalancePoint float64
	// Correction is the percent of potential gain let through (100 = no
	// screens, 0 = fully screened).
	Correction float64

	Coeffs UnitCoeffs
}

// New returns a calculator with learned coefficients attached.
func New(enabled bool, azimuth, balancePoint, correction float64, coeffs UnitCoeffs) *Calculator {
	if coeffs == nil {
		coeffs = make(UnitCoeffs)
	}
	return &Calculator{
		Enabled:      enabled,
		Azimuth:      azimuth,
		BalancePoint: balancePoint,
		Correction:   correction,
		Coeffs:       coeffs,
	}
}

// Factor computes the solar factor (0.0-1.0) from sun position and cloud
// coverage percent.
//
// Elevation uses vertical-window geometry, cos(elevation), so low winter
// sun scores higher than high summer sun, with a linear atmospheric fade
// between 5 and 10 degrees. Azimuth uses three zones around the facade
// normal: direct sun within 75 degrees rides a rescaled cosine down to the
// diffuse floor, glancing light up to 90 degrees holds the floor, and the
// backside only sees sky diffuse.
func (c *Calculator) Factor(elevation, azimuth, cloudCoverage float64) float64 {
	if elevation < model.SolarMinElevation {
		return 0.0
	}

	rawElev := math.Max(0.0, math.Cos(elevation*math.Pi/180.0))
	elevFactor := rawElev
	if elevation < model.SolarFullElevation {
		elevFactor = rawElev * (elevation - model.SolarMinElevation) / (model.SolarFullElevation - model.SolarMinElevation)
	}

	delta := math.Abs(azimuth - c.Azimuth)
	if delta > 180 {
		delta = 360 - delta
	}

	cutoff := 90.0 - model.SolarAzimuthBuffer
	var azFactor float64
	switch {
	case delta <= cutoff:
		direct := math.Cos(delta / cutoff * (math.Pi / 2))
		azFactor = direct*(1.0-model.SolarDiffuseFloor) + model.SolarDiffuseFloor
	case delta <= 90.0:
		azFactor = model.SolarDiffuseFloor
	default:
		azFactor = model.SolarBacksideFloor
	}

	cloudFactor := 1.0 - cloudCoverage/100.0

	return elevFactor * azFactor * cloudFactor
}

// EffectiveFactor applies the screen correction to a potential factor.
func (c *Calculator) EffectiveFactor(potential float64) float64 {
	return potential * (c.Correction / 100.0)
}

// UnitImpact converts the global factor into a unit's kW impact via its
// learned coefficient.
func (c *Calculator) UnitImpact(factor, coeff float64) float64 {
	return factor * coeff
}

// UnitCoefficient resolves the solar coefficient for a unit at a
// temperature bucket: exact match, then mode-aware neighborhood (±1
// average or closest same-mode bucket), then the mode default.
func (c *Calculator) UnitCoefficient(unit, tempKey string, unitMode model.Mode) float64 {
	coeffs := c.Coeffs[unit]

	if v, ok := coeffs[tempKey]; ok {
		return v
	}

	targetT, err := strconv.Atoi(tempKey)
	if err == nil && len(coeffs) > 0 {
		targetMode := model.ModeForTemp(float64(targetT), c.BalancePoint)

		modeCoeffs := make(map[int]float64)
		for tStr, v := range coeffs {
			tInt, err := strconv.Atoi(tStr)
			if err != nil {
				continue
			}
			if model.ModeForTemp(float64(tInt), c.BalancePoint) == targetMode {
				modeCoeffs[tInt] = v
			}
		}

		if len(modeCoeffs) > 0 {
			minus, okMinus := modeCoeffs[targetT-1]
			plus, okPlus := modeCoeffs[targetT+1]
			if okMinus && okPlus {
				return (minus + plus) / 2.0
			}

			closest := 0
			best := math.MaxInt32
			for tInt := range modeCoeffs {
				diff := tInt - targetT
				if diff < 0 {
					diff = -diff
				}
				if diff < best {
					best = diff
					closest = tInt
				}
			}
			return modeCoeffs[closest]
		}
	}

	// Mode default.
	mode := unitMode
	if err == nil {
		mode = model.ModeForTemp(float64(targetT), c.BalancePoint)
	}
	switch {
	case mode.IsHeating():
		return model.DefaultSolarCoeffHeat
	case mode.IsCooling():
		return model.DefaultSolarCoeffCool
	}
	return 0.0
}

// SetCoefficient writes a learned coefficient for a unit and bucket.
func (c *Calculator) SetCoefficient(unit, tempKey string, coeff float64) {
	if c.Coeffs == nil {
		c.Coeffs = make(UnitCoeffs)
	}
	m, ok := c.Coeffs[unit]
	if !ok {
		m = make(map[string]float64)
		c.Coeffs[unit] = m
	}
	m[tempKey] = coeff
}

// Coefficient returns the stored (not resolved) coefficient for a cell.
func (c *Calculator) Coefficient(unit, tempKey string) (float64, bool) {
	v, ok := c.Coeffs[unit][tempKey]
	return v, ok
}

// Saturation splits a unit's solar potential into applied and wasted
// portions against its remaining net demand.
//
// Heating can only absorb sunshine down to zero demand; the rest is
// wasted through open curtains on an already-warm room. Cooling load
// grows with sunshine, so the full potential applies additively. Units
// that are off contribute nothing either way.
func (c *Calculator) Saturation(netDemand, solarPotential float64, mode model.Mode) (applied, wasted, finalNet float64) {
	finalNet = netDemand

	switch {
	case mode.IsHeating():
		limit := math.Max(0.0, netDemand)
		applied = math.Min(solarPotential, limit)
		wasted = solarPotential - applied
		finalNet = math.Max(0.0, netDemand-applied)
	case mode.IsCooling():
		applied = solarPotential
		wasted = 0.0
		finalNet = netDemand + applied
	case mode == model.ModeOff:
		applied = 0.0
		wasted = 0.0
		finalNet = 0.0
	}

	return model.RoundTo(applied, 3), model.RoundTo(wasted, 3), model.RoundTo(finalNet, 3)
}

// SaturationForTemp derives the mode from temperature before saturating.
func (c *Calculator) SaturationForTemp(netDemand, solarPotential, temp float64) (applied, wasted, finalNet float64) {
	return c.Saturation(netDemand, solarPotential, model.ModeForTemp(temp, c.BalancePoint))
}

// NormalizeForLearning converts a measured hour back to "dark" conditions
// so the base model trains without the solar signal. Heating was reduced
// by the sun, cooling was inflated by it. Clamped at zero.
func (c *Calculator) NormalizeForLearning(actualKWh, solarImpact float64, mode model.Mode) float64 {
	normalized := actualKWh
	switch {
	case mode.IsHeating():
		normalized = actualKWh + solarImpact
	case mode.IsCooling():
		normalized = actualKWh - solarImpact
	}
	return math.Max(0.0, normalized)
}

// DistributeImpact splits a global solar impact across units proportional
// to predicted consumption, falling back to actual consumption when the
// prediction sums to nothing.
func (c *Calculator) DistributeImpact(totalImpact float64, predicted, actual map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(predicted))
	for unit := range predicted {
		out[unit] = 0.0
	}
	if totalImpact < model.EnergyGuard {
		return out
	}

	totalPredicted := 0.0
	for _, v := range predicted {
		totalPredicted += v
	}
	if totalPredicted > model.EnergyGuard {
		for unit, v := range predicted {
			out[unit] = v / totalPredicted * totalImpact
		}
		return out
	}

	totalActual := 0.0
	for unit, v := range actual {
		if _, ok := out[unit]; ok {
			totalActual += v
		}
	}
	if totalActual > model.EnergyGuard {
		for unit := range out {
			out[unit] = actual[unit] / totalActual * totalImpact
		}
	}
	return out
}

// RemoveUnit drops learned coefficients for a unit no longer configured.
func (c *Calculator) RemoveUnit(unit string) {
	delete(c.Coeffs, unit)
}
