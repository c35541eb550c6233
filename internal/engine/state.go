package engine

import (
	"log/slog"

	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
	"heating_analytics/internal/solar"
)

// PersistedState is everything the engine carries across restarts. The
// current hour's accumulators are deliberately not part of it: after a
// restart the first sample of the hour backfills the elapsed minutes.
type PersistedState struct {
	Models      *learning.Models          `json:"models"`
	SolarCoeffs solar.UnitCoeffs          `json:"solar_coefficients"`
	Aux         AuxState                  `json:"aux"`
	LastMeters  map[string]float64        `json:"last_meters"`
	HourlyLogs  []model.HourlyLog         `json:"hourly_logs"`
	DailyLogs   map[string]model.DailyLog `json:"daily_logs"`
	CurrentDay  string                    `json:"current_day"`
	DayActual   float64                   `json:"day_actual_kwh"`
	DayExpected float64                   `json:"day_expected_kwh"`
}

// ExportState deep-copies the persistent state so the caller can
// serialize it without holding the engine up.
func (e *Engine) ExportState() PersistedState {
	e.mu.Lock()
	defer e.mu.Unlock()

	coeffs := make(solar.UnitCoeffs, len(e.solar.Coeffs))
	for unit, byTemp := range e.solar.Coeffs {
		cp := make(map[string]float64, len(byTemp))
		for k, v := range byTemp {
			cp[k] = v
		}
		coeffs[unit] = cp
	}

	meters := make(map[string]float64, len(e.lastMeters))
	for k, v := range e.lastMeters {
		meters[k] = v
	}

	logs := make([]model.HourlyLog, len(e.hourlyLogs))
	copy(logs, e.hourlyLogs)

	daily := make(map[string]model.DailyLog, len(e.daily))
	for k, v := range e.daily {
		daily[k] = v
	}

	return PersistedState{
		Models:      e.models.Clone(),
		SolarCoeffs: coeffs,
		Aux:         e.aux,
		LastMeters:  meters,
		HourlyLogs:  logs,
		DailyLogs:   daily,
		CurrentDay:  e.currentDay,
		DayActual:   e.dayActualKWh,
		DayExpected: e.dayExpectedKWh,
	}
}

// RestoreState loads a snapshot. Units that disappeared from the
// configuration since the snapshot are pruned.
func (e *Engine) RestoreState(st PersistedState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st.Models != nil {
		st.Models.Normalize()
		e.models = st.Models
	}
	if st.SolarCoeffs != nil {
		e.solar.Coeffs = st.SolarCoeffs
	}
	e.aux = st.Aux
	if st.LastMeters != nil {
		e.lastMeters = st.LastMeters
	}
	if st.HourlyLogs != nil {
		e.hourlyLogs = st.HourlyLogs
	}
	if st.DailyLogs != nil {
		e.daily = st.DailyLogs
	}
	e.currentDay = st.CurrentDay
	e.dayActualKWh = st.DayActual
	e.dayExpectedKWh = st.DayExpected

	known := make(map[string]bool, len(e.cfg.Units))
	for _, u := range e.cfg.Units {
		known[u] = true
	}
	for unit := range e.lastMeters {
		if !known[unit] {
			delete(e.lastMeters, unit)
		}
	}
	for unit := range e.models.UnitCorrelation {
		if !known[unit] {
			e.log.Info("pruning unit absent from configuration", slog.String("unit", unit))
			e.models.RemoveUnit(unit)
			e.solar.RemoveUnit(unit)
		}
	}
}
