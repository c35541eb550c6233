package engine

import (
	"log/slog"
	"math"
	"time"

	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
)

// closeHour finalizes the running hour: cooldown exit, aggregate stats,
// boundary gap fill, learning and the log entry. Call with the lock held
// and with now already in the configured location.
func (e *Engine) closeHour(now time.Time) {
	h := &e.hour

	// The convergent hour itself still learns frozen; the exit only
	// unfreezes learning from the next hour on.
	wasCooldown := e.aux.CooldownActive
	if e.aux.CooldownActive {
		actualSum, expectedSum := e.cooldownSums()
		if e.aux.EvaluateExit(now, actualSum, expectedSum) {
			e.log.Info("aux cooldown exited",
				slog.Float64("actual_kwh", model.RoundTo(actualSum, 3)),
				slog.Float64("expected_kwh", model.RoundTo(expectedSum, 3)))
		}
	}

	var (
		avgTemp     float64
		wind90      float64
		avgSolar    float64
		avgCloud    float64
		auxFraction float64
		auxDominant bool
	)
	windBucket := model.WindNormal
	if h.sampleCount > 0 {
		n := float64(h.sampleCount)
		avgTemp = h.tempSum / n
		wind90 = windPercentile(h.windValues)
		if e.cfg.SolarEnabled {
			avgSolar = h.solarSum / n
		}
		avgCloud = h.cloudSum / n
		windBucket = model.WindBucketFor(wind90)
		auxFraction = float64(h.auxCount) / n
		auxDominant = auxFraction >= model.AuxDominanceFraction
	}

	// Fill the tail of the hour with mean imputation so the log always
	// covers 60 minutes of expectation.
	minutesImputed := 0
	if h.lastMinute >= 0 {
		minutesImputed = e.closeHourGap(avgTemp, wind90, avgSolar, auxDominant)
	}
	minutesObserved := 60 - minutesImputed

	// Learning temperature smooths over recent hours per thermal inertia.
	inertiaAvg := e.closedHourInertia(now, avgTemp)
	tempKey := model.TempKey(inertiaAvg)

	totalKWh := h.actualKWh
	learningKWh := 0.0
	guestKWh := 0.0
	for unit, actual := range h.actualPerUnit {
		mode := e.unitMode(unit)
		switch {
		case mode.IsGuest():
			guestKWh += actual
		case mode != model.ModeOff:
			learningKWh += actual
		}
	}

	auxImpactKWh := model.RoundTo(h.auxImpactKWh, 3)

	// One analysis pass pins both the base anchor and the saturated solar
	// impact. The measured aux accumulation overrides the model here.
	analysis := ComputeBreakdown(BreakdownInput{
		Temp:          inertiaAvg,
		EffectiveWind: wind90,
		AuxActive:     auxDominant,
		SolarFactor:   avgSolar,
		KnownAuxKWh:   &auxImpactKWh,
		UnitModes:     e.unitModes,
	}, e.cfg.Units, e.auxAffectedSet(), e.models, e.solar, e.cfg.BalancePoint, e.cfg.SolarEnabled)

	baseExpectedKWh := analysis.GlobalBaseKWh
	solarImpactKWh := 0.0
	if e.cfg.SolarEnabled {
		solarImpactKWh = analysis.Totals.SolarKWh
	}

	hasGuest := false
	for _, mode := range e.unitModes {
		if mode.IsGuest() {
			hasGuest = true
			break
		}
	}

	result := e.learner.Process(learning.HourInput{
		TempKey:          tempKey,
		Wind:             windBucket,
		AvgTemp:          avgTemp,
		TotalKWh:         learningKWh,
		BaseExpectedKWh:  baseExpectedKWh,
		SolarImpactKWh:   solarImpactKWh,
		AvgSolarFactor:   avgSolar,
		SampleCount:      h.sampleCount,
		Enabled:          e.cfg.LearningEnabled,
		AuxDominant:      auxDominant,
		AuxFraction:      auxFraction,
		AuxImpactKWh:     auxImpactKWh,
		HasGuestActivity: hasGuest,
		CooldownActive:   wasCooldown,
		UnitDeltas:       h.actualPerUnit,
		UnitExpectedBase: h.expectedBasePerUnit,
		UnitModes:        e.unitModes,
		AuxAffected:      e.auxAffectedSet(),
	}, e.models, e.solar)

	tdd := math.Abs(e.cfg.BalancePoint-avgTemp) / 24.0

	units := make(map[string]model.UnitHour, len(e.cfg.Units))
	for _, unit := range e.cfg.Units {
		mode := e.unitMode(unit)
		status := result.Status
		switch {
		case mode.IsGuest():
			status = model.StatusSkippedGuest
		case mode == model.ModeOff:
			status = model.StatusSkippedOff
		}
		units[unit] = model.UnitHour{
			ActualKWh:   model.RoundTo(h.actualPerUnit[unit], 3),
			ExpectedKWh: model.RoundTo(h.expectedPerUnit[unit], 3),
			SolarKWh:    model.RoundTo(h.solarPerUnit[unit], 3),
			Mode:        mode,
			Status:      status,
		}
	}

	entry := model.HourlyLog{
		Timestamp:       h.start,
		Temp:            model.RoundTo(avgTemp, 2),
		EffectiveWind:   model.RoundTo(wind90, 2),
		WindBucket:      windBucket,
		TDD:             model.RoundTo(tdd, 4),
		ActualKWh:       model.RoundTo(totalKWh, 3),
		ExpectedKWh:     model.RoundTo(h.expectedKWh, 3),
		SolarFactor:     model.RoundTo(avgSolar, 3),
		SolarImpactKWh:  model.RoundTo(solarImpactKWh, 3),
		CloudCoverage:   model.RoundTo(avgCloud, 1),
		AuxMinutes:      h.auxCount,
		AuxFraction:     model.RoundTo(auxFraction, 3),
		IsAuxDominant:   auxDominant,
		WasCooldown:     wasCooldown,
		Status:          result.Status,
		MinutesObserved: minutesObserved,
		MinutesImputed:  minutesImputed,
		Units:           units,
	}

	e.hourlyLogs = append(e.hourlyLogs, entry)
	if len(e.hourlyLogs) > model.HourlyLogRetention {
		e.hourlyLogs = e.hourlyLogs[len(e.hourlyLogs)-model.HourlyLogRetention:]
	}

	if e.archive != nil {
		if err := e.archive.AppendHourly(entry); err != nil {
			e.log.Error("hourly archive append failed", slog.Any("error", err))
		}
	}
	if e.callback != nil {
		e.callback.OnHourClosed(entry)
	}

	e.log.Info("hour closed",
		slog.Time("hour", h.start),
		slog.Float64("actual_kwh", entry.ActualKWh),
		slog.Float64("expected_kwh", entry.ExpectedKWh),
		slog.String("status", string(result.Status)),
		slog.Float64("guest_kwh", model.RoundTo(guestKWh, 3)))
}

// closeHourGap accrues the minutes between the last processed sample and
// the hour boundary, at the hour's aggregate conditions. Returns the
// number of imputed minutes.
func (e *Engine) closeHourGap(avgTemp, avgWind, avgSolar float64, auxActive bool) int {
	missing := 60 - (e.hour.lastMinute + 1)
	if missing <= 0 {
		return 0
	}
	fraction := float64(missing) / 60.0

	bd := ComputeBreakdown(BreakdownInput{
		Temp:          avgTemp,
		EffectiveWind: avgWind,
		AuxActive:     auxActive,
		SolarFactor:   avgSolar,
		UnitModes:     e.unitModes,
		Detailed:      true,
	}, e.cfg.Units, e.auxAffectedSet(), e.models, e.solar, e.cfg.BalancePoint, e.cfg.SolarEnabled)

	e.accrueBreakdown(bd, fraction)
	return missing
}

// closedHourInertia is the inertia temperature used as the learning key:
// recent closed hour temps plus this hour's average.
func (e *Engine) closedHourInertia(now time.Time, avgTemp float64) float64 {
	weights := e.cfg.InertiaWeights
	hoursBack := len(weights) - 1
	cutoff := now.Add(-time.Duration(len(weights)) * time.Hour)

	var temps []float64
	for i := len(e.hourlyLogs) - 1; i >= 0 && len(temps) < hoursBack; i-- {
		if e.hourlyLogs[i].Timestamp.Before(cutoff) {
			break
		}
		temps = append(temps, e.hourlyLogs[i].Temp)
	}
	for i, j := 0, len(temps)-1; i < j; i, j = i+1, j-1 {
		temps[i], temps[j] = temps[j], temps[i]
	}
	temps = append(temps, avgTemp)

	count := len(temps)
	if count > len(weights) {
		count = len(weights)
	}
	activeTemps := temps[len(temps)-count:]
	activeWeights := weights[len(weights)-count:]

	totalWeight := 0.0
	for _, w := range activeWeights {
		totalWeight += w
	}
	if totalWeight == 0 {
		sum := 0.0
		for _, t := range activeTemps {
			sum += t
		}
		return sum / float64(count)
	}
	weighted := 0.0
	for i, t := range activeTemps {
		weighted += t * activeWeights[i]
	}
	return weighted / totalWeight
}

// cooldownSums collects measured and expected base consumption for the
// aux-affected units, used by the convergence exit.
func (e *Engine) cooldownSums() (actual, expected float64) {
	affected := e.auxAffectedSet()
	for _, unit := range e.cfg.Units {
		if affected != nil && !affected[unit] {
			continue
		}
		actual += e.hour.actualPerUnit[unit]
		expected += e.hour.expectedBasePerUnit[unit]
	}
	return actual, expected
}

func (e *Engine) unitMode(unit string) model.Mode {
	if mode, ok := e.unitModes[unit]; ok {
		return mode
	}
	return model.ModeHeating
}
