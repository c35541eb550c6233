package engine

import (
	"log/slog"
	"math"

	"heating_analytics/internal/model"
)

// AggregateDailyLogs rolls one local day's hourly logs into a daily
// entry. Hours are binned by local hour slot: a fall-back DST day maps
// two logs onto the repeated slot and aggregates them (state values
// averaged, energy and TDD summed); the spring-forward slot stays nil.
func AggregateDailyLogs(date string, logs []model.HourlyLog) model.DailyLog {
	out := model.DailyLog{Date: date, Source: "rollup"}
	if len(logs) == 0 {
		return out
	}

	type slotAgg struct {
		count  int
		temp   float64
		wind   float64
		solar  float64
		actual float64
		tdd    float64
	}
	var slots [24]slotAgg

	for _, entry := range logs {
		out.ActualKWh += entry.ActualKWh
		out.ExpectedKWh += entry.ExpectedKWh
		out.SolarKWh += entry.SolarImpactKWh
		out.MeanTemp += entry.Temp
		out.MeanWind += entry.EffectiveWind
		out.TDD += entry.TDD

		h := entry.Timestamp.Hour()
		slots[h].count++
		slots[h].temp += entry.Temp
		slots[h].wind += entry.EffectiveWind
		slots[h].solar += entry.SolarFactor
		slots[h].actual += entry.ActualKWh
		slots[h].tdd += entry.TDD
	}

	n := float64(len(logs))
	out.MeanTemp = model.RoundTo(out.MeanTemp/n, 1)
	out.MeanWind = model.RoundTo(out.MeanWind/n, 1)
	out.ActualKWh = model.RoundTo(out.ActualKWh, 2)
	out.ExpectedKWh = model.RoundTo(out.ExpectedKWh, 2)
	out.SolarKWh = model.RoundTo(out.SolarKWh, 2)
	out.TDD = model.RoundTo(out.TDD, 1)
	out.HoursObserved = len(logs)

	for h, agg := range slots {
		if agg.count == 0 {
			continue
		}
		c := float64(agg.count)
		temp := model.RoundTo(agg.temp/c, 2)
		wind := model.RoundTo(agg.wind/c, 2)
		solar := model.RoundTo(agg.solar/c, 3)
		actual := model.RoundTo(agg.actual, 3)
		tdd := model.RoundTo(agg.tdd, 4)
		out.HourlyTemp[h] = &temp
		out.HourlyWind[h] = &wind
		out.HourlySolar[h] = &solar
		out.HourlyActual[h] = &actual
		out.HourlyTDD[h] = &tdd
	}

	return out
}

// closeDay rolls the finished local day into the daily history. Call
// with the lock held, after the last hour of the day was closed.
func (e *Engine) closeDay(date string) {
	var logs []model.HourlyLog
	for _, entry := range e.hourlyLogs {
		if entry.Timestamp.Format("2006-01-02") == date {
			logs = append(logs, entry)
		}
	}

	var entry model.DailyLog
	if len(logs) > 0 {
		if len(logs) < model.MinHoursForDailyRollup {
			e.log.Warn("closing day with incomplete coverage",
				slog.String("date", date),
				slog.Int("hours", len(logs)))
		}
		entry = AggregateDailyLogs(date, logs)
	} else {
		// No logs at all, fall back to the day accumulators.
		entry = model.DailyLog{
			Date:        date,
			ActualKWh:   model.RoundTo(e.dayActualKWh, 2),
			ExpectedKWh: model.RoundTo(e.dayExpectedKWh, 2),
			Source:      "rollup",
		}
	}

	e.daily[date] = entry

	if e.archive != nil {
		if err := e.archive.AppendDaily(entry); err != nil {
			e.log.Error("daily archive append failed", slog.Any("error", err))
		}
	}
	if e.callback != nil {
		e.callback.OnDayClosed(entry)
	}

	e.log.Info("day closed",
		slog.String("date", date),
		slog.Float64("actual_kwh", entry.ActualKWh),
		slog.Int("hours", entry.HoursObserved))

	e.dayActualKWh = 0.0
	e.dayExpectedKWh = 0.0

	// Drop meter baselines for units no longer configured.
	known := make(map[string]bool, len(e.cfg.Units))
	for _, u := range e.cfg.Units {
		known[u] = true
	}
	for unit := range e.lastMeters {
		if !known[unit] {
			delete(e.lastMeters, unit)
		}
	}
}

// BackfillDaily rebuilds daily history entries from the retained hourly
// logs, typically after a restore. Existing entries are only replaced
// when the log total agrees with the stored total, so pruned partial
// logs never shrink a day. Returns the number of entries written.
func (e *Engine) BackfillDaily() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	byDate := make(map[string][]model.HourlyLog)
	for _, entry := range e.hourlyLogs {
		key := entry.Timestamp.Format("2006-01-02")
		byDate[key] = append(byDate[key], entry)
	}

	updated := 0
	for date, logs := range byDate {
		agg := AggregateDailyLogs(date, logs)
		agg.Source = "backfill"

		existing, ok := e.daily[date]
		if !ok {
			if len(logs) >= model.MinHoursForDailyRollup {
				e.daily[date] = agg
				updated++
			}
			continue
		}

		diff := math.Abs(agg.ActualKWh - existing.ActualKWh)
		threshold := math.Max(1.0, existing.ActualKWh*0.05)
		if diff > threshold && existing.ActualKWh > agg.ActualKWh {
			// Logs are partial; the stored entry stays authoritative.
			continue
		}
		e.daily[date] = agg
		updated++
	}

	if updated > 0 {
		e.log.Info("backfilled daily history from hourly logs", slog.Int("days", updated))
	}
	return updated
}
