package learning

import (
	"log/slog"
	"math"

	"heating_analytics/internal/model"
)

// MigrateAuxCoefficients redistributes the aux reduction of units removed
// from the affected set onto the remaining units, conserving the global
// total.
//
// Redistribution is proportional to the remaining units' existing
// coefficients per bucket. Buckets nobody else has learned fall back to
// the primary unit. Every write stays clamped to the target unit's base
// model cell.
func MigrateAuxCoefficients(m *Models, oldAffected, newAffected []string, primaryUnit string, log *slog.Logger) bool {
	if log == nil {
		log = slog.Default()
	}

	newSet := make(map[string]bool, len(newAffected))
	for _, u := range newAffected {
		newSet[u] = true
	}

	var removed []string
	for _, u := range oldAffected {
		if !newSet[u] {
			removed = append(removed, u)
		}
	}
	if len(removed) == 0 {
		return false
	}

	log.Info("aux migration: redistributing removed units", "removed", removed)

	changed := false
	for _, removedUnit := range removed {
		src, ok := m.UnitAux[removedUnit]
		if !ok {
			continue
		}

		for tempKey, windData := range src.Data {
			for wind, coeff := range windData {
				if coeff <= 0 {
					continue
				}
				k := model.BucketKey{TempKey: tempKey, Wind: wind}

				totalWeight := 0.0
				weights := make(map[string]float64, len(newAffected))
				for _, target := range newAffected {
					w := 0.0
					if am, ok := m.UnitAux[target]; ok {
						if v, ok := am.Value(k); ok {
							w = v
						}
					}
					weights[target] = w
					totalWeight += w
				}

				if totalWeight > 0 {
					for target, w := range weights {
						if w > 0 {
							addAuxCoefficient(m, target, k, w/totalWeight*coeff)
							changed = true
						}
					}
				} else if primaryUnit != "" {
					log.Debug("aux migration: fallback to primary unit",
						"unit", primaryUnit, "temp", tempKey, "wind", wind, "kw", coeff)
					addAuxCoefficient(m, primaryUnit, k, coeff)
					changed = true
				}
			}
		}

		delete(m.UnitAux, removedUnit)
		changed = true
	}

	return changed
}

// addAuxCoefficient adds to a unit's aux cell, clamped to its base model.
func addAuxCoefficient(m *Models, unit string, k model.BucketKey, add float64) {
	am := m.UnitAuxModel(unit)
	current, _ := am.Value(k)
	next := current + add

	if base, ok := m.UnitBaseValue(unit, k); ok {
		next = math.Min(next, base)
	}

	am.Set(k, model.RoundTo(next, 3))
}

// PrimaryUnit picks the unit with the highest last meter reading, falling
// back to the first candidate.
func PrimaryUnit(candidates []string, lastMeterKWh map[string]float64) string {
	best := ""
	max := -1.0
	for _, unit := range candidates {
		v := lastMeterKWh[unit]
		if v > max {
			max = v
			best = unit
		}
	}
	if best == "" && len(candidates) > 0 {
		return candidates[0]
	}
	return best
}
