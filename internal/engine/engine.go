package engine

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
	"heating_analytics/internal/solar"
)

// Callback receives engine events. All methods are invoked with the
// engine lock held, so implementations must not call back into the
// engine; hand the payload off to a channel instead.
type Callback interface {
	OnState(s LiveState)
	OnHourClosed(entry model.HourlyLog)
	OnDayClosed(entry model.DailyLog)
}

// Archiver persists closed hours and days. Failures are logged and
// ignored; the in-memory log remains the source of truth.
type Archiver interface {
	AppendHourly(entry model.HourlyLog) error
	AppendDaily(entry model.DailyLog) error
}

// Config holds the static engine parameters.
type Config struct {
	Units []string
	// AuxAffected lists the units the auxiliary source bypasses. nil
	// means every unit; an explicit empty slice means none.
	AuxAffected []string

	BalancePoint    float64
	GustFactor      float64
	LearningRate    float64
	MaxEnergyDelta  float64
	LearningEnabled bool

	SolarEnabled    bool
	SolarAzimuth    float64
	SolarCorrection float64 // percent passthrough, 100 = unscreened

	// InertiaWeights smooth the learning temperature over recent hours,
	// oldest to newest. Defaults to the four hour profile.
	InertiaWeights []float64

	Location *time.Location
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BalancePoint == 0 {
		out.BalancePoint = model.DefaultBalancePoint
	}
	if out.GustFactor == 0 {
		out.GustFactor = model.DefaultGustFactor
	}
	if out.LearningRate == 0 {
		out.LearningRate = model.DefaultLearningRate
	}
	if out.MaxEnergyDelta == 0 {
		out.MaxEnergyDelta = model.DefaultMaxDeltaKWh
	}
	if out.SolarAzimuth == 0 {
		out.SolarAzimuth = model.DefaultSolarAzimuth
	}
	if out.SolarCorrection == 0 {
		out.SolarCorrection = 100.0
	}
	if len(out.InertiaWeights) == 0 {
		out.InertiaWeights = []float64{0.20, 0.30, 0.30, 0.20}
	}
	if out.Location == nil {
		out.Location = time.Local
	}
	return out
}

type auxAlloc struct {
	Allocated float64
	Overflow  float64
}

// hourState accumulates the current hour minute by minute.
type hourState struct {
	start      time.Time
	lastMinute int // -1 until the first minute is processed

	sampleCount int
	tempSum     float64
	windValues  []float64
	solarSum    float64
	cloudSum    float64
	auxCount    int

	expectedKWh  float64
	auxImpactKWh float64
	orphanedKWh  float64
	actualKWh    float64

	actualPerUnit       map[string]float64
	expectedPerUnit     map[string]float64
	expectedBasePerUnit map[string]float64
	solarPerUnit        map[string]float64
	auxPerUnit          map[string]auxAlloc
}

func newHourState(start time.Time) hourState {
	return hourState{
		start:               start,
		lastMinute:          -1,
		actualPerUnit:       make(map[string]float64),
		expectedPerUnit:     make(map[string]float64),
		expectedBasePerUnit: make(map[string]float64),
		solarPerUnit:        make(map[string]float64),
		auxPerUnit:          make(map[string]auxAlloc),
	}
}

// Engine is the live analytics core. It consumes sensor readings, accrues
// expected energy minute by minute, closes hours into the learning
// pipeline and rolls closed hours into daily logs.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	models  *learning.Models
	solar   *solar.Calculator
	learner *learning.Engine

	callback Callback
	archive  Archiver

	// live weather state
	temp      *float64
	windSpeed float64
	windGust  *float64
	cloud     float64
	sunElev   float64
	sunAzim   float64

	unitModes  map[string]model.Mode
	aux        AuxState
	lastMeters map[string]float64

	hour       hourState
	hourlyLogs []model.HourlyLog

	daily      map[string]model.DailyLog
	currentDay string

	dayActualKWh   float64
	dayExpectedKWh float64
}

// New builds an engine around previously learned models. Pass fresh
// models from learning.NewModels for a cold start.
func New(cfg Config, models *learning.Models, coeffs solar.UnitCoeffs, log *slog.Logger) *Engine {
	c := cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	models.Normalize()

	sol := solar.New(c.SolarEnabled, c.SolarAzimuth, c.BalancePoint, c.SolarCorrection, coeffs)

	return &Engine{
		cfg:        c,
		log:        log,
		models:     models,
		solar:      sol,
		learner:    learning.New(c.LearningRate, c.BalancePoint, c.SolarEnabled, log),
		unitModes:  make(map[string]model.Mode),
		lastMeters: make(map[string]float64),
		daily:      make(map[string]model.DailyLog),
	}
}

// SetCallback registers the event sink. Must be called before Tick.
func (e *Engine) SetCallback(cb Callback) {
	e.mu.Lock()
	e.callback = cb
	e.mu.Unlock()
}

// SetArchiver registers the durable log sink.
func (e *Engine) SetArchiver(a Archiver) {
	e.mu.Lock()
	e.archive = a
	e.mu.Unlock()
}

func (e *Engine) auxAffectedSet() map[string]bool {
	if e.cfg.AuxAffected == nil {
		return nil
	}
	set := make(map[string]bool, len(e.cfg.AuxAffected))
	for _, u := range e.cfg.AuxAffected {
		set[u] = true
	}
	return set
}

// ApplyReading folds one sensor reading into the live state. Meter
// readings guard against counter resets and spikes: both skip the delta
// and rebase the counter.
func (e *Engine) ApplyReading(r model.Reading) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch r.Kind {
	case model.SensorOutdoorTemp:
		v := r.Value
		e.temp = &v
	case model.SensorWindSpeed:
		e.windSpeed = r.Value
	case model.SensorWindGust:
		v := r.Value
		e.windGust = &v
	case model.SensorCloudCover:
		e.cloud = r.Value
	case model.SensorCondition:
		e.cloud = model.CloudCoverageForCondition(r.Text)
	case model.SensorSunElevation:
		e.sunElev = r.Value
	case model.SensorSunAzimuth:
		e.sunAzim = r.Value
	case model.SensorUnitMode:
		mode := model.Mode(r.Text)
		if mode.Valid() {
			e.unitModes[r.Unit] = mode
		}
	case model.SensorAuxSwitch:
		active := r.Value > 0 || r.Text == "on" || r.Text == "true"
		e.aux.SetActive(active, r.Timestamp)
	case model.SensorEnergyMeter:
		e.applyMeter(r.Unit, r.Value)
	}
}

func (e *Engine) applyMeter(unit string, value float64) {
	prev, known := e.lastMeters[unit]
	e.lastMeters[unit] = value
	if !known {
		return
	}

	delta := value - prev
	if delta < 0 {
		e.log.Warn("energy meter reset, skipping delta",
			slog.String("unit", unit),
			slog.Float64("prev", prev),
			slog.Float64("value", value))
		return
	}
	if delta > e.cfg.MaxEnergyDelta {
		e.log.Warn("energy spike, skipping delta and rebasing",
			slog.String("unit", unit),
			slog.Float64("delta", delta))
		return
	}

	e.hour.actualKWh += delta
	e.hour.actualPerUnit[unit] += delta
	e.dayActualKWh += delta
}

// effectiveWind derives the gust-weighted wind speed from live state.
func (e *Engine) effectiveWind() float64 {
	gust := e.windSpeed
	if e.windGust != nil {
		gust = *e.windGust
	}
	return model.EffectiveWind(e.windSpeed, gust, e.cfg.GustFactor)
}

// Tick advances the engine to now. It closes the previous hour (and day)
// when a boundary was crossed, then accrues the current minute.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = now.In(e.cfg.Location)
	hourStart := now.Truncate(time.Hour)
	day := now.Format("2006-01-02")

	if e.hour.start.IsZero() {
		e.hour = newHourState(hourStart)
		e.currentDay = day
	} else if !e.hour.start.Equal(hourStart) {
		e.closeHour(now)
		e.hour = newHourState(hourStart)
		if day != e.currentDay {
			e.closeDay(e.currentDay)
			e.currentDay = day
		}
	}

	if e.temp == nil {
		e.log.Warn("no outdoor temperature available, skipping accrual")
		return
	}
	e.accrueMinute(now)

	if e.callback != nil {
		e.callback.OnState(e.liveState(now))
	}
}

// accrueMinute samples the weather and accrues expected energy for the
// minutes elapsed since the previous sample.
func (e *Engine) accrueMinute(now time.Time) {
	if e.hour.lastMinute == now.Minute() {
		return
	}

	minutesStep := 1
	if e.hour.lastMinute >= 0 {
		if diff := now.Minute() - e.hour.lastMinute; diff > 0 {
			minutesStep = diff
		}
	} else {
		// First sample of the hour covers everything since the boundary.
		minutesStep = now.Minute() + 1
	}
	fraction := float64(minutesStep) / 60.0

	temp := *e.temp
	effWind := e.effectiveWind()
	factor := e.solar.EffectiveFactor(e.solar.Factor(e.sunElev, e.sunAzim, e.cloud))

	calcTemp := temp
	if inertia, ok := e.inertiaTemp(now, temp); ok {
		calcTemp = inertia
	}

	bd := ComputeBreakdown(BreakdownInput{
		Temp:          calcTemp,
		EffectiveWind: effWind,
		AuxActive:     e.aux.Active,
		SolarFactor:   factor,
		UnitModes:     e.unitModes,
		Detailed:      true,
	}, e.cfg.Units, e.auxAffectedSet(), e.models, e.solar, e.cfg.BalancePoint, e.cfg.SolarEnabled)

	e.accrueBreakdown(bd, fraction)

	e.hour.sampleCount++
	e.hour.tempSum += temp
	e.hour.windValues = append(e.hour.windValues, effWind)
	e.hour.solarSum += factor
	e.hour.cloudSum += e.cloud
	if e.aux.Active {
		e.hour.auxCount++
	}
	e.hour.lastMinute = now.Minute()
}

// accrueBreakdown adds fraction of an hourly rate to the accumulators.
// Shared by the live path and the boundary gap fill.
func (e *Engine) accrueBreakdown(bd Breakdown, fraction float64) {
	if bd.TotalKWh > 0 {
		e.hour.expectedKWh += bd.TotalKWh * fraction
		e.dayExpectedKWh += bd.TotalKWh * fraction
	}
	if bd.GlobalAuxKWh > 0 {
		e.hour.auxImpactKWh += bd.GlobalAuxKWh * fraction
	}
	if bd.Totals.OrphanedAux > 0 {
		e.hour.orphanedKWh += bd.Totals.OrphanedAux * fraction
	}
	for unit, slice := range bd.Units {
		if slice.NetKWh > 0 {
			e.hour.expectedPerUnit[unit] += slice.NetKWh * fraction
		}
		if slice.BaseKWh > 0 {
			e.hour.expectedBasePerUnit[unit] += slice.BaseKWh * fraction
		}
		if slice.SolarKWh > 0 {
			e.hour.solarPerUnit[unit] += slice.SolarKWh * fraction
		}
		alloc := e.hour.auxPerUnit[unit]
		alloc.Allocated += slice.AuxKWh * fraction
		alloc.Overflow += slice.OverflowKWh * fraction
		e.hour.auxPerUnit[unit] = alloc
	}
}

// inertiaTemp computes the weighted inertia temperature from recent
// closed hours plus the running hour average. Returns false when no
// temperature is known at all.
func (e *Engine) inertiaTemp(now time.Time, current float64) (float64, bool) {
	weights := e.cfg.InertiaWeights
	hoursBack := len(weights) - 1
	maxGap := time.Duration(len(weights)) * time.Hour
	cutoff := now.Add(-maxGap)

	var temps []float64
	for i := len(e.hourlyLogs) - 1; i >= 0 && len(temps) < hoursBack; i-- {
		entry := e.hourlyLogs[i]
		if entry.Timestamp.Before(cutoff) {
			break
		}
		temps = append(temps, entry.Temp)
	}
	// collected newest first, restore chronological order
	for i, j := 0, len(temps)-1; i < j; i, j = i+1, j-1 {
		temps[i], temps[j] = temps[j], temps[i]
	}

	if e.hour.sampleCount > 0 {
		temps = append(temps, e.hour.tempSum/float64(e.hour.sampleCount))
	} else {
		temps = append(temps, current)
	}

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
		return sum / float64(count), true
	}

	weighted := 0.0
	for i, t := range activeTemps {
		weighted += t * activeWeights[i]
	}
	return weighted / totalWeight, true
}

// LiveState is the streaming snapshot pushed to callbacks.
type LiveState struct {
	Timestamp      time.Time            `json:"timestamp"`
	Temp           *float64             `json:"temp,omitempty"`
	EffectiveWind  float64              `json:"effective_wind"`
	WindBucket     model.WindBucket     `json:"wind_bucket"`
	SolarFactor    float64              `json:"solar_factor"`
	AuxActive      bool                 `json:"aux_active"`
	CooldownActive bool                 `json:"cooldown_active"`
	ExpectedKWh    float64              `json:"expected_kwh_hour"`
	ActualKWh      float64              `json:"actual_kwh_hour"`
	ActualToday    float64              `json:"actual_kwh_today"`
	ExpectedToday  float64              `json:"expected_kwh_today"`
	Breakdown      Breakdown            `json:"breakdown"`
}

func (e *Engine) liveState(now time.Time) LiveState {
	effWind := e.effectiveWind()
	factor := e.solar.EffectiveFactor(e.solar.Factor(e.sunElev, e.sunAzim, e.cloud))

	var bd Breakdown
	if e.temp != nil {
		bd = ComputeBreakdown(BreakdownInput{
			Temp:          *e.temp,
			EffectiveWind: effWind,
			AuxActive:     e.aux.Active,
			SolarFactor:   factor,
			UnitModes:     e.unitModes,
			Detailed:      true,
		}, e.cfg.Units, e.auxAffectedSet(), e.models, e.solar, e.cfg.BalancePoint, e.cfg.SolarEnabled)
	}

	return LiveState{
		Timestamp:      now,
		Temp:           e.temp,
		EffectiveWind:  model.RoundTo(effWind, 2),
		WindBucket:     model.WindBucketFor(effWind),
		SolarFactor:    model.RoundTo(factor, 3),
		AuxActive:      e.aux.Active,
		CooldownActive: e.aux.CooldownActive,
		ExpectedKWh:    model.RoundTo(e.hour.expectedKWh, 3),
		ActualKWh:      model.RoundTo(e.hour.actualKWh, 3),
		ActualToday:    model.RoundTo(e.dayActualKWh, 3),
		ExpectedToday:  model.RoundTo(e.dayExpectedKWh, 3),
		Breakdown:      bd,
	}
}

// LiveState builds the streaming snapshot on demand for request/response
// surfaces.
func (e *Engine) LiveState(now time.Time) LiveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveState(now.In(e.cfg.Location))
}

// CurrentBreakdown exposes the live disaggregation for request/response
// surfaces.
func (e *Engine) CurrentBreakdown() (Breakdown, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.temp == nil {
		return Breakdown{}, false
	}
	factor := e.solar.EffectiveFactor(e.solar.Factor(e.sunElev, e.sunAzim, e.cloud))
	return ComputeBreakdown(BreakdownInput{
		Temp:          *e.temp,
		EffectiveWind: e.effectiveWind(),
		AuxActive:     e.aux.Active,
		SolarFactor:   factor,
		UnitModes:     e.unitModes,
		Detailed:      true,
	}, e.cfg.Units, e.auxAffectedSet(), e.models, e.solar, e.cfg.BalancePoint, e.cfg.SolarEnabled), true
}

// Predict runs the models for arbitrary conditions without touching
// state. Used by the CLI prediction tool and the query surface.
func (e *Engine) Predict(temp, effectiveWind, solarFactor float64, auxActive bool) Breakdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ComputeBreakdown(BreakdownInput{
		Temp:          temp,
		EffectiveWind: effectiveWind,
		AuxActive:     auxActive,
		SolarFactor:   solarFactor,
		UnitModes:     e.unitModes,
		Detailed:      true,
	}, e.cfg.Units, e.auxAffectedSet(), e.models, e.solar, e.cfg.BalancePoint, e.cfg.SolarEnabled)
}

// HourlyLogs returns a copy of the retained hourly log.
func (e *Engine) HourlyLogs() []model.HourlyLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.HourlyLog, len(e.hourlyLogs))
	copy(out, e.hourlyLogs)
	return out
}

// DailyLogs returns a copy of the daily history keyed by ISO date.
func (e *Engine) DailyLogs() map[string]model.DailyLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]model.DailyLog, len(e.daily))
	for k, v := range e.daily {
		out[k] = v
	}
	return out
}

// RemoveUnit drops a unit and migrates its learned aux capacity onto the
// remaining affected units so the global reduction stays conserved.
func (e *Engine) RemoveUnit(unit string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var units []string
	for _, u := range e.cfg.Units {
		if u != unit {
			units = append(units, u)
		}
	}
	oldAffected := e.cfg.AuxAffected
	var newAffected []string
	if oldAffected != nil {
		for _, u := range oldAffected {
			if u != unit {
				newAffected = append(newAffected, u)
			}
		}
	}

	primary := learning.PrimaryUnit(units, e.lastMeters)
	affectedBefore := oldAffected
	if affectedBefore == nil {
		affectedBefore = e.cfg.Units
	}
	affectedAfter := newAffected
	if oldAffected == nil {
		affectedAfter = units
	}
	learning.MigrateAuxCoefficients(e.models, affectedBefore, affectedAfter, primary, e.log)

	e.models.RemoveUnit(unit)
	e.solar.RemoveUnit(unit)
	delete(e.unitModes, unit)
	delete(e.lastMeters, unit)
	e.cfg.Units = units
	e.cfg.AuxAffected = newAffected
	if oldAffected == nil {
		e.cfg.AuxAffected = nil
	}
}

// ResetLearning wipes learned state. With an empty unit every model,
// buffer and solar coefficient starts over; with a unit only that unit's
// state is cleared so it relearns against the intact global model.
// Closed hourly and daily logs are kept either way.
func (e *Engine) ResetLearning(unit string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if unit == "" {
		e.log.Warn("resetting all learned state")
		e.models = learning.NewModels()
		e.solar.Coeffs = make(solar.UnitCoeffs)
		return
	}

	e.log.Warn("resetting learned state for unit", slog.String("unit", unit))
	e.models.RemoveUnit(unit)
	e.solar.RemoveUnit(unit)
}

// ImportHistorical replays archived hourly observations into the models.
// Returns the number of samples learned.
func (e *Engine) ImportHistorical(entries []model.HourlyLog) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	learned := 0
	for _, entry := range entries {
		if entry.ActualKWh <= model.EnergyGuard {
			continue
		}
		status := e.learner.ImportHistorical(
			model.TempKey(entry.Temp),
			entry.WindBucket,
			entry.ActualKWh,
			entry.IsAuxDominant,
			entry.Temp,
			e.models,
		)
		if status == model.StatusLearned || status == model.StatusLearnedAux {
			learned++
		}
	}
	return learned
}

// windPercentile returns the nearest-rank 90th percentile of the hour's
// effective wind samples.
func windPercentile(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	idx := int(math.Ceil(0.9*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
