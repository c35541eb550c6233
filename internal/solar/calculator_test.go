package solar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"heating_analytics/internal/model"
)

func newCalc() *Calculator {
	return New(true, 180, 17.0, 100, nil)
}

func TestFactor_BelowHorizonBand(t *testing.T) {
	c := newCalc()
	assert.InDelta(t, 0.0, c.Factor(4.9, 180, 0), 0.0001)
}

func TestFactor_AtmosphericFade(t *testing.T) {
	c := newCalc()
	// At 7.5° facing straight on: cos(7.5°) * ((7.5-5)/5) * 1.0 azimuth * clear sky
	want := math.Cos(7.5*math.Pi/180) * 0.5
	assert.InDelta(t, want, c.Factor(7.5, 180, 0), 0.0001)
}

func TestFactor_DirectSunFullElevation(t *testing.T) {
	c := newCalc()
	// cos(30°) ≈ 0.866, azimuth dead-on = 1.0, clear sky.
	assert.InDelta(t, math.Cos(30*math.Pi/180), c.Factor(30, 180, 0), 0.0001)
}

func TestFactor_AzimuthZones(t *testing.T) {
	c := newCalc()
	elev := 30.0
	base := math.Cos(elev * math.Pi / 180)

	// Glancing zone (delta 80°) holds the diffuse floor.
	assert.InDelta(t, base*0.1, c.Factor(elev, 260, 0), 0.0001)
	// Backside (delta 120°) sees only sky diffuse.
	assert.InDelta(t, base*0.05, c.Factor(elev, 300, 0), 0.0001)
	// Direct zone hits exactly the floor at the 75° cutoff.
	assert.InDelta(t, base*0.1, c.Factor(elev, 255, 0), 0.0001)
}

func TestFactor_AzimuthWrapsShortestPath(t *testing.T) {
	c := New(true, 10, 17.0, 100, nil)
	elev := 30.0
	base := math.Cos(elev * math.Pi / 180)
	// 350° vs 10° is a 20° delta through north, not 340°.
	delta := 20.0
	direct := math.Cos(delta/75.0*(math.Pi/2))*(1.0-0.1) + 0.1
	assert.InDelta(t, base*direct, c.Factor(elev, 350, 0), 0.0001)
}

func TestFactor_CloudAttenuation(t *testing.T) {
	c := newCalc()
	clear := c.Factor(30, 180, 0)
	assert.InDelta(t, clear*0.15, c.Factor(30, 180, 85), 0.0001)
	assert.InDelta(t, 0.0, c.Factor(30, 180, 100), 0.0001)
}

func TestEffectiveFactor_Screens(t *testing.T) {
	c := New(true, 180, 17.0, 40, nil)
	assert.InDelta(t, 0.32, c.EffectiveFactor(0.8), 0.0001)
}

func TestSaturation_PartialAbsorption(t *testing.T) {
	c := newCalc()
	applied, wasted, final := c.Saturation(2.1, 1.7, model.ModeHeating)
	assert.InDelta(t, 1.7, applied, 0.0001)
	assert.InDelta(t, 0.0, wasted, 0.0001)
	assert.InDelta(t, 0.4, final, 0.0001)
}

func TestSaturation_Overflow(t *testing.T) {
	c := newCalc()
	// Demand 0.41 can only absorb 0.41 of the 0.81 potential.
	applied, wasted, final := c.Saturation(0.41, 0.81, model.ModeHeating)
	assert.InDelta(t, 0.41, applied, 0.0001)
	assert.InDelta(t, 0.4, wasted, 0.0001)
	assert.InDelta(t, 0.0, final, 0.0001)
}

func TestSaturation_NegativeNetAfterAux(t *testing.T) {
	c := newCalc()
	// Aux overkill: no demand left, all sunshine wasted.
	applied, wasted, final := c.Saturation(-0.5, 1.0, model.ModeHeating)
	assert.InDelta(t, 0.0, applied, 0.0001)
	assert.InDelta(t, 1.0, wasted, 0.0001)
	assert.InDelta(t, 0.0, final, 0.0001)
}

func TestSaturation_CoolingIsAdditive(t *testing.T) {
	c := newCalc()
	applied, wasted, final := c.Saturation(1.0, 0.6, model.ModeCooling)
	assert.InDelta(t, 0.6, applied, 0.0001)
	assert.InDelta(t, 0.0, wasted, 0.0001)
	assert.InDelta(t, 1.6, final, 0.0001)
}

func TestSaturation_GuestFollowsBaseMode(t *testing.T) {
	c := newCalc()
	applied, _, final := c.Saturation(2.0, 0.5, model.ModeGuestHeating)
	assert.InDelta(t, 0.5, applied, 0.0001)
	assert.InDelta(t, 1.5, final, 0.0001)
}

func TestSaturation_OffZeroes(t *testing.T) {
	c := newCalc()
	applied, wasted, final := c.Saturation(1.2, 0.5, model.ModeOff)
	assert.InDelta(t, 0.0, applied, 0.0001)
	assert.InDelta(t, 0.0, wasted, 0.0001)
	assert.InDelta(t, 0.0, final, 0.0001)
}

func TestNormalizeForLearning(t *testing.T) {
	c := newCalc()
	// Heating: sun reduced the reading, add it back.
	assert.InDelta(t, 2.5, c.NormalizeForLearning(2.0, 0.5, model.ModeHeating), 0.0001)
	// Cooling: sun inflated the reading, remove it.
	assert.InDelta(t, 1.5, c.NormalizeForLearning(2.0, 0.5, model.ModeCooling), 0.0001)
	// Never negative.
	assert.InDelta(t, 0.0, c.NormalizeForLearning(0.2, 0.5, model.ModeCooling), 0.0001)
	// Off: untouched.
	assert.InDelta(t, 2.0, c.NormalizeForLearning(2.0, 0.5, model.ModeOff), 0.0001)
}

func TestUnitCoefficient_ExactMatch(t *testing.T) {
	c := newCalc()
	c.SetCoefficient("living", "10", 0.8)
	assert.InDelta(t, 0.8, c.UnitCoefficient("living", "10", model.ModeHeating), 0.0001)
}

func TestUnitCoefficient_NeighborAverage(t *testing.T) {
	c := newCalc()
	c.SetCoefficient("living", "9", 0.6)
	c.SetCoefficient("living", "11", 0.8)
	assert.InDelta(t, 0.7, c.UnitCoefficient("living", "10", model.ModeHeating), 0.0001)
}

func TestUnitCoefficient_SameModeOnly(t *testing.T) {
	c := newCalc()
	// 20 °C is a cooling bucket under balance point 17; a heating request
	// at 10 °C must not borrow it, so the heating default applies.
	c.SetCoefficient("living", "20", 0.9)
	assert.InDelta(t, model.DefaultSolarCoeffHeat, c.UnitCoefficient("living", "10", model.ModeHeating), 0.0001)
}

func TestUnitCoefficient_ClosestSameMode(t *testing.T) {
	c := newCalc()
	c.SetCoefficient("living", "2", 0.5)
	c.SetCoefficient("living", "14", 0.3)
	assert.InDelta(t, 0.3, c.UnitCoefficient("living", "10", model.ModeHeating), 0.0001)
}

func TestUnitCoefficient_ModeDefaults(t *testing.T) {
	c := newCalc()
	assert.InDelta(t, model.DefaultSolarCoeffHeat, c.UnitCoefficient("living", "5", model.ModeHeating), 0.0001)
	assert.InDelta(t, model.DefaultSolarCoeffCool, c.UnitCoefficient("living", "22", model.ModeHeating), 0.0001)
}

func TestDistributeImpact_ByPrediction(t *testing.T) {
	c := newCalc()
	out := c.DistributeImpact(1.0, map[string]float64{"a": 3.0, "b": 1.0}, nil)
	assert.InDelta(t, 0.75, out["a"], 0.0001)
	assert.InDelta(t, 0.25, out["b"], 0.0001)
}

func TestDistributeImpact_FallsBackToActual(t *testing.T) {
	c := newCalc()
	out := c.DistributeImpact(1.0,
		map[string]float64{"a": 0.0, "b": 0.0},
		map[string]float64{"a": 0.5, "b": 1.5})
	assert.InDelta(t, 0.25, out["a"], 0.0001)
	assert.InDelta(t, 0.75, out["b"], 0.0001)
}

func TestDistributeImpact_NegligibleImpact(t *testing.T) {
	c := newCalc()
	out := c.DistributeImpact(0.005, map[string]float64{"a": 3.0}, nil)
	assert.InDelta(t, 0.0, out["a"], 0.0001)
}
