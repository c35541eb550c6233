package learning

import (
	"log/slog"
	"math"

	"heating_analytics/internal/model"
	"heating_analytics/internal/predictor"
	"heating_analytics/internal/solar"
)

// Engine folds closed hours into the learned models.
type Engine struct {
	Rate         float64
	BalancePoint float64
	SolarEnabled bool

	log *slog.Logger
}

// New returns a learning engine.
func New(rate, balancePoint float64, solarEnabled bool, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Rate: rate, BalancePoint: balancePoint, SolarEnabled: solarEnabled, log: log}
}

// HourInput is everything a closed hour contributes to learning.
type HourInput struct {
	TempKey string
	Wind    model.WindBucket
	AvgTemp float64

	// TotalKWh is the guest-excluded consumption for the hour.
	TotalKWh float64
	// BaseExpectedKWh is the global base prediction used as the learning
	// anchor (Track A, never the unit sum).
	BaseExpectedKWh float64
	SolarImpactKWh  float64
	AvgSolarFactor  float64

	SampleCount int
	Enabled     bool

	// AuxDominant marks hours whose aux fraction crossed the dominance
	// threshold; AuxFraction drives the mixed-mode guard and AuxImpactKWh
	// the dual-interference guard.
	AuxDominant  bool
	AuxFraction  float64
	AuxImpactKWh float64

	HasGuestActivity bool
	CooldownActive   bool

	// UnitDeltas holds measured per-unit kWh; units absent the whole hour
	// are missing from the map and skip learning.
	UnitDeltas map[string]float64
	// UnitExpectedBase carries the per-unit baselines already computed for
	// the hour's breakdown, so learning and attribution agree.
	UnitExpectedBase map[string]float64
	UnitModes        map[string]model.Mode
	// AuxAffected is the set of units aux heating bypasses. nil means
	// every unit is affected.
	AuxAffected map[string]bool
}

func (in *HourInput) unitAffected(unit string) bool {
	if in.AuxAffected == nil {
		return true
	}
	return in.AuxAffected[unit]
}

// Result reports what the hour did to the global models.
type Result struct {
	ModelUpdated bool
	BaseBefore   float64
	BaseAfter    float64
	AuxUpdated   bool
	AuxBefore    float64
	AuxAfter     float64
	Status       model.LearningStatus
}

// Process runs the full learning pipeline for one closed hour.
//
// The global base model is the learning anchor: aux-dominant hours freeze
// it and train the aux reduction model from the implied gap instead, and
// cooldown hours freeze it while letting unaffected units keep learning.
// Hours that mix regimes, or where solar and aux interfere, train nothing.
func (e *Engine) Process(in HourInput, m *Models, sol *solar.Calculator) Result {
	res := Result{
		BaseBefore: in.BaseExpectedKWh,
		BaseAfter:  in.BaseExpectedKWh,
		Status:     model.StatusLearned,
	}

	if in.SampleCount == 0 {
		res.Status = model.StatusSkippedLowEnergy
		return res
	}

	if !in.Enabled {
		res.Status = model.StatusDisabled
		return res
	}

	// Mixed-mode hours cannot be attributed to either regime.
	if in.AuxFraction > model.MixedModeLow && in.AuxFraction < model.MixedModeHigh {
		res.Status = model.StatusSkippedMixedMode
		return res
	}

	// When sunshine and aux both move the needle, neither signal is clean.
	if in.SolarImpactKWh > model.DualInterferenceKWh && in.AuxImpactKWh > model.DualInterferenceKWh {
		res.Status = model.StatusSkippedDual
		return res
	}

	runGlobal := true
	if in.CooldownActive {
		// Thermal lag from the aux burn still distorts readings; only
		// unaffected units learn until the house converges.
		runGlobal = false
		res.Status = model.StatusCooldownPostAux
	}

	if runGlobal {
		globalMode := model.ModeForTemp(in.AvgTemp, e.BalancePoint)
		normalized := in.TotalKWh
		if e.SolarEnabled {
			normalized = sol.NormalizeForLearning(in.TotalKWh, in.SolarImpactKWh, globalMode)
		}

		if in.AuxDominant {
			e.learnGlobalAux(in, m, normalized, &res)
		} else {
			e.learnGlobalBase(in, m, normalized, &res)
		}
	}

	e.processUnits(in, m, sol)

	return res
}

// learnGlobalAux trains the global aux reduction from the gap between the
// (frozen) base prediction and the normalized actual.
func (e *Engine) learnGlobalAux(in HourInput, m *Models, normalized float64, res *Result) {
	if in.HasGuestActivity {
		// Guest consumption pollutes the implied gap.
		e.log.Debug("aux learning skipped, guest activity", "temp", in.TempKey, "wind", in.Wind)
		res.Status = model.StatusSkippedGuest
		if v, ok := m.AuxGlobal.Value(model.BucketKey{TempKey: in.TempKey, Wind: in.Wind}); ok {
			res.AuxBefore = v
			res.AuxAfter = v
		}
		return
	}

	impliedAux := in.BaseExpectedKWh - normalized

	k := model.BucketKey{TempKey: in.TempKey, Wind: in.Wind}
	current, ok := m.AuxGlobal.Value(k)
	if !ok {
		// Seed a new wind bucket from a calmer sibling so a regime shift
		// does not restart the coefficient at zero.
		current = auxSeedFromCalmerBucket(m.AuxGlobal, in.TempKey, in.Wind)
	}
	res.AuxBefore = current
	res.AuxAfter = current

	if math.Abs(impliedAux) <= model.EnergyGuard {
		res.Status = model.StatusLearnedAux
		return
	}

	next := current + e.Rate*(impliedAux-current)
	next = math.Max(0.0, next)
	m.AuxGlobal.Set(k, model.RoundTo(next, 3))
	m.AuxGlobal.IncrementCount(k)

	res.AuxAfter = model.RoundTo(next, 3)
	res.AuxUpdated = true
	res.Status = model.StatusLearnedAux
}

func auxSeedFromCalmerBucket(aux *predictor.BucketModel, tempKey string, wind model.WindBucket) float64 {
	buckets, ok := aux.Data[tempKey]
	if !ok {
		return 0.0
	}
	switch wind {
	case model.WindExtreme:
		if v, ok := buckets[model.WindHigh]; ok {
			return v
		}
		if v, ok := buckets[model.WindNormal]; ok {
			return v
		}
	case model.WindHigh:
		if v, ok := buckets[model.WindNormal]; ok {
			return v
		}
	}
	return 0.0
}

// learnGlobalBase trains the global correlation model, buffering cold
// cells until enough samples accumulate.
func (e *Engine) learnGlobalBase(in HourInput, m *Models, normalized float64, res *Result) {
	k := model.BucketKey{TempKey: in.TempKey, Wind: in.Wind}

	if in.BaseExpectedKWh == 0.0 {
		mean, seeded := m.GlobalBuffer.Add(k, normalized, model.BufferThreshold)
		if seeded {
			m.Correlation.Set(k, model.RoundTo(mean, 5))
			m.Correlation.IncrementCount(k)
			res.BaseAfter = mean
			res.ModelUpdated = true
			res.Status = model.StatusSeeded
			e.log.Info("seeded global cell", "temp", in.TempKey, "wind", in.Wind, "kwh", model.RoundTo(mean, 3))
		} else {
			res.BaseAfter = 0.0
			res.Status = model.StatusBuffered
		}
		return
	}

	next := in.BaseExpectedKWh + e.Rate*(normalized-in.BaseExpectedKWh)
	m.Correlation.Set(k, model.RoundTo(next, 5))
	m.Correlation.IncrementCount(k)
	res.BaseAfter = next
	res.ModelUpdated = true
	res.Status = model.StatusLearned
}

// processUnits runs selective per-unit learning for the hour.
func (e *Engine) processUnits(in HourInput, m *Models, sol *solar.Calculator) {
	k := model.BucketKey{TempKey: in.TempKey, Wind: in.Wind}

	for unit, actual := range in.UnitDeltas {
		mode, ok := in.UnitModes[unit]
		if !ok {
			mode = model.ModeHeating
		}
		if mode == model.ModeOff || mode.IsGuest() {
			continue
		}
		if in.CooldownActive && in.unitAffected(unit) {
			continue
		}

		expectedBase, ok := in.UnitExpectedBase[unit]
		if !ok {
			expectedBase = m.UnitModel(unit).Predict(in.TempKey, in.Wind, in.AvgTemp, e.BalancePoint, true)
		}

		if e.SolarEnabled && in.AvgSolarFactor > 0.1 && !in.AuxDominant {
			e.learnUnitSolar(unit, in.TempKey, expectedBase, actual, in.AvgSolarFactor, mode, m, sol)
		}

		normalized := actual
		if e.SolarEnabled {
			coeff := sol.UnitCoefficient(unit, in.TempKey, mode)
			impact := sol.UnitImpact(in.AvgSolarFactor, coeff)
			normalized = sol.NormalizeForLearning(actual, impact, mode)
		}

		if in.AuxDominant && in.unitAffected(unit) {
			e.learnUnitAux(unit, k, expectedBase, normalized, m)
		} else {
			e.learnUnitBase(unit, k, normalized, m)
		}
	}
}

// learnUnitSolar updates a unit's solar coefficient from the base/actual
// gap at the observed solar factor.
func (e *Engine) learnUnitSolar(unit, tempKey string, expectedBase, actual, factor float64, mode model.Mode, m *Models, sol *solar.Calculator) {
	var impact float64
	switch mode {
	case model.ModeHeating:
		impact = expectedBase - actual
	case model.ModeCooling:
		impact = actual - expectedBase
	default:
		return
	}

	if factor <= 0.01 {
		return
	}

	implied := impact / factor
	implied = math.Max(0.0, implied)
	implied = math.Min(model.SolarCoeffCap, implied)

	current, hasCurrent := sol.Coefficient(unit, tempKey)
	if !hasCurrent {
		buckets, ok := m.UnitSolarBuffers[unit]
		if !ok {
			buckets = make(map[string][]float64)
			m.UnitSolarBuffers[unit] = buckets
		}
		samples := append(buckets[tempKey], implied)
		if len(samples) < model.BufferThreshold {
			buckets[tempKey] = samples
			return
		}
		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		delete(buckets, tempKey)
		sol.SetCoefficient(unit, tempKey, model.RoundTo(sum/float64(len(samples)), 5))
		e.log.Info("seeded unit solar coefficient", "unit", unit, "temp", tempKey)
		return
	}

	rate := math.Min(e.Rate, model.PerUnitRateCap)
	next := current + rate*(implied-current)
	next = math.Max(0.0, next)
	sol.SetCoefficient(unit, tempKey, model.RoundTo(next, 5))
}

// learnUnitBase trains a unit's correlation cell, buffering cold cells so
// fallback predictions never become phantom data.
func (e *Engine) learnUnitBase(unit string, k model.BucketKey, normalized float64, m *Models) {
	bm := m.UnitModel(unit)
	current, hasExact := bm.Value(k)
	if !hasExact {
		mean, seeded := m.unitBuffer(unit).Add(k, normalized, model.BufferThreshold)
		if !seeded {
			return
		}
		bm.Set(k, model.RoundTo(mean, 5))
		bm.IncrementCount(k)
		e.log.Info("seeded unit cell", "unit", unit, "temp", k.TempKey, "wind", k.Wind, "kwh", model.RoundTo(mean, 3))
		return
	}

	rate := math.Min(e.Rate, model.PerUnitRateCap)
	next := current + rate*(normalized-current)
	bm.Set(k, model.RoundTo(next, 5))
	bm.IncrementCount(k)
}

// learnUnitAux trains a unit's aux reduction. Requires an exact base cell:
// a reduction learned against an extrapolated base is not anchored to
// anything measurable, and the coefficient must never exceed the base.
func (e *Engine) learnUnitAux(unit string, k model.BucketKey, expectedBase, normalized float64, m *Models) {
	if expectedBase <= model.EnergyGuard {
		return
	}

	baseCell, hasBase := m.UnitBaseValue(unit, k)
	if !hasBase {
		return
	}

	implied := expectedBase - normalized
	implied = math.Max(0.0, implied)
	implied = math.Min(implied, baseCell)

	am := m.UnitAuxModel(unit)
	current, hasCurrent := am.Value(k)
	if !hasCurrent {
		mean, seeded := m.unitAuxBuffer(unit).Add(k, implied, model.BufferThreshold)
		if !seeded {
			return
		}
		am.Set(k, model.RoundTo(math.Min(mean, baseCell), 3))
		am.IncrementCount(k)
		return
	}

	rate := math.Min(e.Rate, model.PerUnitRateCap)
	next := current + rate*(implied-current)
	next = math.Max(0.0, next)
	next = math.Min(next, baseCell)
	am.Set(k, model.RoundTo(next, 3))
	am.IncrementCount(k)
}

// ImportHistorical folds one historical sample into the global models,
// seeding empty cells directly. Used by the CSV import path.
func (e *Engine) ImportHistorical(tempKey string, wind model.WindBucket, actualKWh float64, auxActive bool, actualTemp float64, m *Models) model.LearningStatus {
	k := model.BucketKey{TempKey: tempKey, Wind: wind}

	if auxActive {
		base := m.Correlation.Predict(tempKey, wind, actualTemp, e.BalancePoint, true)
		if base <= model.EnergyGuard {
			return model.StatusSkippedLowEnergy
		}
		implied := math.Max(0.0, base-actualKWh)
		current, _ := m.AuxGlobal.Value(k)
		next := implied
		if current != 0.0 {
			next = current + e.Rate*(implied-current)
		}
		m.AuxGlobal.Set(k, model.RoundTo(next, 3))
		return model.StatusLearnedAux
	}

	current, _ := m.Correlation.Value(k)
	next := actualKWh
	if current != 0.0 {
		next = current + e.Rate*(actualKWh-current)
	}
	m.Correlation.Set(k, model.RoundTo(next, 5))
	return model.StatusLearned
}
