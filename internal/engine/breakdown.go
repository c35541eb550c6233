package engine

import (
	"math"

	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
	"heating_analytics/internal/solar"
)

// UnitSlice is one unit's share of a breakdown.
type UnitSlice struct {
	NetKWh       float64 `json:"net_kwh"`
	BaseKWh      float64 `json:"base_kwh"`
	AuxKWh       float64 `json:"aux_reduction_kwh"`
	RawAuxKWh    float64 `json:"raw_aux_kwh"`
	OverflowKWh  float64 `json:"overflow_kwh"`
	Clamped      bool    `json:"clamped"`
	SolarKWh     float64 `json:"solar_reduction_kwh"`
	RawSolarKWh  float64 `json:"raw_solar_kwh"`
	SolarWasted  float64 `json:"solar_wasted_kwh"`
}

// BreakdownTotals sums the unit slices.
type BreakdownTotals struct {
	BaseKWh        float64 `json:"base_kwh"`
	AuxKWh         float64 `json:"aux_reduction_kwh"`
	SolarKWh       float64 `json:"solar_reduction_kwh"`
	SolarWasted    float64 `json:"solar_wasted_kwh"`
	UnassignedAux  float64 `json:"unassigned_aux_savings"`
	OrphanedAux    float64 `json:"orphaned_aux_savings"`
	UnspecifiedKWh float64 `json:"unspecified_kwh"`
}

// Breakdown is a full disaggregation of predicted consumption: the global
// model anchors the total while unit models provide the split, and any
// disagreement surfaces as unspecified rather than being forced onto units.
type Breakdown struct {
	TotalKWh      float64              `json:"total_kwh"`
	GlobalBaseKWh float64              `json:"global_base_kwh"`
	GlobalAuxKWh  float64              `json:"global_aux_reduction_kwh"`
	Totals        BreakdownTotals      `json:"breakdown"`
	Units         map[string]UnitSlice `json:"unit_breakdown,omitempty"`
}

// BreakdownInput is a point-in-time (or hour-aggregate) condition set.
type BreakdownInput struct {
	Temp          float64
	EffectiveWind float64
	AuxActive     bool
	SolarFactor   float64
	// KnownAuxKWh overrides the model-predicted global aux reduction with
	// a measured value (used at hour close).
	KnownAuxKWh *float64
	UnitModes   map[string]model.Mode
	Detailed    bool
}

// ComputeBreakdown runs the two-track disaggregation.
//
// Track A asks the global models for the total and the aux reduction.
// Track B builds every unit from its own models, clamps aux to the unit
// base, saturates solar against the remaining net, and sums up. Aux
// capacity the units could not absorb is reported as unassigned; global
// aux the units never claimed is reported as orphaned on top of that.
func ComputeBreakdown(in BreakdownInput, units []string, auxAffected map[string]bool,
	m *learning.Models, sol *solar.Calculator, balancePoint float64, solarEnabled bool) Breakdown {

	tempKey := model.TempKey(in.Temp)
	wind := model.WindBucketFor(in.EffectiveWind)

	// Track A: global anchor.
	globalBase := m.Correlation.Predict(tempKey, wind, in.Temp, balancePoint, true)

	globalAux := 0.0
	effectiveAuxActive := in.AuxActive
	if in.KnownAuxKWh != nil {
		globalAux = *in.KnownAuxKWh
		if globalAux > 0 {
			effectiveAuxActive = true
		}
	} else if in.AuxActive {
		globalAux = m.AuxGlobal.Predict(tempKey, wind, in.Temp, balancePoint, true)
	}

	// Track B pass 1: raw per-unit values.
	type rawUnit struct {
		base     float64
		rawAux   float64
		solar    float64
		mode     model.Mode
		affected bool
	}
	raw := make(map[string]rawUnit, len(units))

	for _, unit := range units {
		base := 0.0
		if um, ok := m.UnitCorrelation[unit]; ok {
			base = um.Predict(tempKey, wind, in.Temp, balancePoint, true)
		}

		mode := model.ModeHeating
		if md, ok := in.UnitModes[unit]; ok {
			mode = md
		}

		affected := false
		rawAux := 0.0
		if effectiveAuxActive {
			affected = auxAffected == nil || auxAffected[unit]
			if affected {
				if am, ok := m.UnitAux[unit]; ok {
					rawAux = am.Predict(tempKey, wind, in.Temp, balancePoint, true)
				}
			}
		}

		unitSolar := 0.0
		if solarEnabled {
			coeff := sol.UnitCoefficient(unit, tempKey, mode)
			unitSolar = sol.UnitImpact(in.SolarFactor, coeff)
		}

		raw[unit] = rawUnit{base: base, rawAux: rawAux, solar: unitSolar, mode: mode, affected: affected}
	}

	// Track B pass 2: finalize.
	var (
		unitSumBase     float64
		unitSumNet      float64
		unitSumAux      float64
		unitSumSolar    float64
		unitSumWasted   float64
		unassignedAux   float64
		appliedHeating  float64
		appliedCooling  float64
	)
	var unitBreakdown map[string]UnitSlice
	if in.Detailed {
		unitBreakdown = make(map[string]UnitSlice, len(units))
	}

	for unit, data := range raw {
		unitSumBase += data.base

		finalAux := data.rawAux
		if !data.affected {
			finalAux = 0.0
		}

		appliedAux := math.Min(finalAux, data.base)
		overflow := finalAux - appliedAux
		if overflow > 0 {
			unassignedAux += overflow
		}
		netAfterAux := data.base - appliedAux

		solarApplied, solarWasted, netFinal := sol.Saturation(netAfterAux, data.solar, data.mode)

		if in.Detailed {
			unitBreakdown[unit] = UnitSlice{
				NetKWh:      model.RoundTo(netFinal, 3),
				BaseKWh:     model.RoundTo(data.base, 3),
				AuxKWh:      model.RoundTo(appliedAux, 3),
				RawAuxKWh:   model.RoundTo(finalAux, 3),
				OverflowKWh: model.RoundTo(overflow, 3),
				Clamped:     overflow > 0.001,
				SolarKWh:    model.RoundTo(solarApplied, 3),
				RawSolarKWh: model.RoundTo(data.solar, 3),
				SolarWasted: model.RoundTo(solarWasted, 3),
			}
		}

		if data.mode.IsCooling() {
			appliedCooling += solarApplied
		} else {
			appliedHeating += solarApplied
		}

		unitSumNet += netFinal
		unitSumAux += appliedAux
		unitSumSolar += solarApplied
		unitSumWasted += solarWasted
	}

	// Global aux the units never claimed.
	orphanedAux := 0.0
	if effectiveAuxActive && globalAux > 0 {
		remaining := globalAux - unitSumAux - unassignedAux
		if remaining > 0.001 {
			orphanedAux = remaining
			unassignedAux += remaining
		}
	}

	globalSolarEffect := appliedCooling - appliedHeating
	globalNetAfterAux := math.Max(0.0, globalBase-globalAux)
	globalNet := math.Max(0.0, globalNetAfterAux+globalSolarEffect)

	unspecified := globalNet - unitSumNet

	return Breakdown{
		TotalKWh:      model.RoundTo(globalNet, 3),
		GlobalBaseKWh: model.RoundTo(globalBase, 3),
		GlobalAuxKWh:  model.RoundTo(globalAux, 3),
		Totals: BreakdownTotals{
			BaseKWh:        model.RoundTo(unitSumBase, 3),
			AuxKWh:         model.RoundTo(unitSumAux, 3),
			SolarKWh:       model.RoundTo(unitSumSolar, 3),
			SolarWasted:    model.RoundTo(unitSumWasted, 3),
			UnassignedAux:  model.RoundTo(unassignedAux, 3),
			OrphanedAux:    model.RoundTo(orphanedAux, 3),
			UnspecifiedKWh: model.RoundTo(unspecified, 3),
		},
		Units: unitBreakdown,
	}
}
