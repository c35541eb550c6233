package engine

import (
	"time"

	"heating_analytics/internal/model"
)

// AuxState tracks the auxiliary source switch and its post-shutdown
// cooldown window. While the cooldown runs, learning for the global
// models and the affected units stays frozen so thermal carry-over
// from the aux source cannot contaminate the base coefficients.
type AuxState struct {
	Active         bool      `json:"active"`
	CooldownActive bool      `json:"cooldown_active"`
	CooldownSince  time.Time `json:"cooldown_since,omitempty"`
}

// SetActive applies a switch transition. Turning the source back on
// cancels a running cooldown; turning it off starts one.
func (a *AuxState) SetActive(active bool, now time.Time) {
	if active {
		a.Active = true
		a.CooldownActive = false
		a.CooldownSince = time.Time{}
		return
	}
	if a.Active {
		a.Active = false
		a.CooldownActive = true
		a.CooldownSince = now
	}
}

// EvaluateExit decides at an hour boundary whether the cooldown is over.
// The forced exit fires after the maximum window regardless of readings.
// The convergence exit needs the minimum window plus evidence that the
// affected units consume at least 95% of their expected base again,
// meaning the stored aux heat has dissipated.
func (a *AuxState) EvaluateExit(now time.Time, actualSum, expectedSum float64) bool {
	if !a.CooldownActive {
		return false
	}
	elapsed := now.Sub(a.CooldownSince)

	if elapsed >= time.Duration(model.CooldownMaxHours)*time.Hour {
		a.CooldownActive = false
		a.CooldownSince = time.Time{}
		return true
	}

	if elapsed >= time.Duration(model.CooldownMinHours)*time.Hour && expectedSum > 0.01 {
		if actualSum/expectedSum >= model.CooldownConvergenceRatio {
			a.CooldownActive = false
			a.CooldownSince = time.Time{}
			return true
		}
	}
	return false
}
