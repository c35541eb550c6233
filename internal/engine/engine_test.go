package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heating_analytics/internal/model"
)

var e0 = time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)

type captureCallback struct {
	states []LiveState
	hours  []model.HourlyLog
	days   []model.DailyLog
}

func (c *captureCallback) OnState(s LiveState)           { c.states = append(c.states, s) }
func (c *captureCallback) OnHourClosed(h model.HourlyLog) { c.hours = append(c.hours, h) }
func (c *captureCallback) OnDayClosed(d model.DailyLog)   { c.days = append(c.days, d) }

func testEngine() (*Engine, *captureCallback) {
	e := New(Config{
		Units:           []string{"unit_a", "unit_b"},
		LearningEnabled: true,
		Location:        time.UTC,
	}, testModels(), nil, nil)
	cb := &captureCallback{}
	e.SetCallback(cb)
	return e, cb
}

func feedWeather(e *Engine, temp float64, ts time.Time) {
	e.ApplyReading(model.Reading{Timestamp: ts, Kind: model.SensorOutdoorTemp, Value: temp})
	e.ApplyReading(model.Reading{Timestamp: ts, Kind: model.SensorWindSpeed, Value: 2.0})
}

func TestEngineExpectedAccrual(t *testing.T) {
	e, _ := testEngine()
	feedWeather(e, 5.0, e0)

	// 60 one-minute ticks at a 3.0 kWh/h model rate
	for m := 0; m < 60; m++ {
		e.Tick(e0.Add(time.Duration(m) * time.Minute))
	}

	e.mu.Lock()
	expected := e.hour.expectedKWh
	e.mu.Unlock()

	// 60 minutes at 3.0 kWh/h
	assert.InDelta(t, 3.0, expected, 1e-6)
}

func TestEngineGapFillConservation(t *testing.T) {
	e, cb := testEngine()
	feedWeather(e, 5.0, e0)

	// only the first half hour is observed
	for m := 0; m < 30; m++ {
		e.Tick(e0.Add(time.Duration(m) * time.Minute))
	}
	// the next tick lands in the following hour and closes the gap
	e.Tick(e0.Add(time.Hour))

	require.Len(t, cb.hours, 1)
	entry := cb.hours[0]

	// imputation restores the full 60 minutes of expectation
	assert.InDelta(t, 3.0, entry.ExpectedKWh, 1e-3)
	assert.Equal(t, 30, entry.MinutesObserved)
	assert.Equal(t, 30, entry.MinutesImputed)
}

func TestEngineMeterDeltas(t *testing.T) {
	e, _ := testEngine()
	feedWeather(e, 5.0, e0)
	e.Tick(e0)

	meter := func(kwh float64, ts time.Time) {
		e.ApplyReading(model.Reading{Timestamp: ts, Kind: model.SensorEnergyMeter, Unit: "unit_a", Value: kwh})
	}

	meter(100.0, e0)                    // baseline only
	meter(100.4, e0.Add(time.Minute))   // +0.4
	meter(99.0, e0.Add(2*time.Minute))  // reset, skipped, rebased
	meter(99.5, e0.Add(3*time.Minute))  // +0.5
	meter(110.0, e0.Add(4*time.Minute)) // +10.5 spike, skipped, rebased
	meter(110.2, e0.Add(5*time.Minute)) // +0.2

	e.mu.Lock()
	actual := e.hour.actualPerUnit["unit_a"]
	e.mu.Unlock()

	// 0.4 + 0.5 + 0.2
	assert.InDelta(t, 1.1, actual, 1e-9)
}

func TestEngineHourCloseLearning(t *testing.T) {
	e, cb := testEngine()
	feedWeather(e, 5.0, e0)

	for m := 0; m < 60; m++ {
		e.Tick(e0.Add(time.Duration(m) * time.Minute))
		if m == 0 {
			// one measured kWh sample early in the hour
			e.ApplyReading(model.Reading{Kind: model.SensorEnergyMeter, Unit: "unit_a", Value: 50.0})
		}
		if m == 30 {
			e.ApplyReading(model.Reading{Kind: model.SensorEnergyMeter, Unit: "unit_a", Value: 52.9})
		}
	}
	e.Tick(e0.Add(time.Hour))

	require.Len(t, cb.hours, 1)
	entry := cb.hours[0]

	assert.Equal(t, model.StatusLearned, entry.Status)
	assert.InDelta(t, 2.9, entry.ActualKWh, 1e-9)
	assert.InDelta(t, 5.0, entry.Temp, 1e-9)
	assert.Equal(t, model.WindNormal, entry.WindBucket)
	// TDD contribution: |17 - 5| / 24 = 0.5
	assert.InDelta(t, 0.5, entry.TDD, 1e-9)

	// EMA moved the 3.0 cell toward 2.9: 3.0 + 0.01*(2.9-3.0) = 2.999
	v, ok := e.models.Correlation.Value(model.BucketKey{TempKey: "5", Wind: model.WindNormal})
	require.True(t, ok)
	assert.InDelta(t, 2.999, v, 1e-9)
}

func TestEngineGuestExcludedFromLearning(t *testing.T) {
	e, cb := testEngine()
	feedWeather(e, 5.0, e0)
	e.ApplyReading(model.Reading{Kind: model.SensorUnitMode, Unit: "unit_b", Text: "guest_heating"})

	e.Tick(e0)
	e.ApplyReading(model.Reading{Kind: model.SensorEnergyMeter, Unit: "unit_a", Value: 10.0})
	e.ApplyReading(model.Reading{Kind: model.SensorEnergyMeter, Unit: "unit_b", Value: 20.0})
	for m := 1; m < 60; m++ {
		e.Tick(e0.Add(time.Duration(m) * time.Minute))
	}
	e.ApplyReading(model.Reading{Kind: model.SensorEnergyMeter, Unit: "unit_a", Value: 12.9})
	e.ApplyReading(model.Reading{Kind: model.SensorEnergyMeter, Unit: "unit_b", Value: 21.0})
	e.Tick(e0.Add(time.Hour))

	require.Len(t, cb.hours, 1)
	// log keeps the raw total including the guest unit
	assert.InDelta(t, 3.9, cb.hours[0].ActualKWh, 1e-9)
	assert.Equal(t, model.StatusSkippedGuest, cb.hours[0].Units["unit_b"].Status)

	// but the model only saw the 2.9 from unit_a: 3.0 + 0.01*(2.9-3.0)
	v, _ := e.models.Correlation.Value(model.BucketKey{TempKey: "5", Wind: model.WindNormal})
	assert.InDelta(t, 2.999, v, 1e-9)
}

func TestEngineCooldownFreezesHour(t *testing.T) {
	e, cb := testEngine()
	feedWeather(e, 5.0, e0)

	e.ApplyReading(model.Reading{Timestamp: e0.Add(-time.Hour), Kind: model.SensorAuxSwitch, Text: "on"})
	e.ApplyReading(model.Reading{Timestamp: e0, Kind: model.SensorAuxSwitch, Text: "off"})

	for m := 0; m < 60; m++ {
		e.Tick(e0.Add(time.Duration(m) * time.Minute))
	}
	e.Tick(e0.Add(time.Hour))

	require.Len(t, cb.hours, 1)
	assert.True(t, cb.hours[0].WasCooldown)
	assert.Equal(t, model.StatusCooldownPostAux, cb.hours[0].Status)

	// global cell untouched
	v, _ := e.models.Correlation.Value(model.BucketKey{TempKey: "5", Wind: model.WindNormal})
	assert.InDelta(t, 3.0, v, 1e-9)
}

func TestEngineDayClose(t *testing.T) {
	e, cb := testEngine()
	// start the engine one hour before local midnight
	start := time.Date(2026, 1, 10, 23, 0, 0, 0, time.UTC)
	feedWeather(e, 5.0, start)

	for m := 0; m < 60; m++ {
		e.Tick(start.Add(time.Duration(m) * time.Minute))
	}
	e.Tick(start.Add(time.Hour))

	require.Len(t, cb.days, 1)
	assert.Equal(t, "2026-01-10", cb.days[0].Date)
	assert.Equal(t, 1, cb.days[0].HoursObserved)
	assert.InDelta(t, 3.0, cb.days[0].ExpectedKWh, 1e-2)
}

func TestEngineStateRoundTrip(t *testing.T) {
	e, _ := testEngine()
	feedWeather(e, 5.0, e0)
	for m := 0; m < 60; m++ {
		e.Tick(e0.Add(time.Duration(m) * time.Minute))
	}
	e.Tick(e0.Add(time.Hour))

	st := e.ExportState()
	require.Len(t, st.HourlyLogs, 1)

	e2 := New(Config{
		Units:           []string{"unit_a", "unit_b"},
		LearningEnabled: true,
		Location:        time.UTC,
	}, testModels(), nil, nil)
	e2.RestoreState(st)

	assert.Equal(t, e.HourlyLogs(), e2.HourlyLogs())
	v1, _ := e.models.Correlation.Value(model.BucketKey{TempKey: "5", Wind: model.WindNormal})
	v2, _ := e2.models.Correlation.Value(model.BucketKey{TempKey: "5", Wind: model.WindNormal})
	assert.Equal(t, v1, v2)
}

func TestResetLearningAll(t *testing.T) {
	e, _ := testEngine()

	require.InDelta(t, 3.0, e.Predict(5.0, 3.0, 0.0, false).TotalKWh, 1e-9)

	e.ResetLearning("")

	bd := e.Predict(5.0, 3.0, 0.0, false)
	assert.InDelta(t, 0.0, bd.TotalKWh, 1e-9)
}

func TestResetLearningSingleUnit(t *testing.T) {
	e, _ := testEngine()

	e.ResetLearning("unit_a")

	bd := e.Predict(5.0, 3.0, 0.0, false)
	// Global model is untouched; unit_a's share moves to unspecified.
	assert.InDelta(t, 3.0, bd.TotalKWh, 1e-9)
	assert.InDelta(t, 0.0, bd.Units["unit_a"].NetKWh, 1e-9)
	assert.InDelta(t, 1.0, bd.Units["unit_b"].NetKWh, 1e-9)
	assert.InDelta(t, 2.0, bd.Totals.UnspecifiedKWh, 1e-9)
}
