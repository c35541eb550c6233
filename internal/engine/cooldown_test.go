package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var cd0 = time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)

func TestAuxStateTransitions(t *testing.T) {
	var a AuxState

	a.SetActive(true, cd0)
	assert.True(t, a.Active)
	assert.False(t, a.CooldownActive)

	a.SetActive(false, cd0.Add(2*time.Hour))
	assert.False(t, a.Active)
	assert.True(t, a.CooldownActive)
	assert.Equal(t, cd0.Add(2*time.Hour), a.CooldownSince)

	// switching back on cancels the cooldown
	a.SetActive(true, cd0.Add(3*time.Hour))
	assert.True(t, a.Active)
	assert.False(t, a.CooldownActive)
}

func TestAuxStateOffWhileOffIsNoop(t *testing.T) {
	var a AuxState
	a.SetActive(false, cd0)
	assert.False(t, a.CooldownActive)
}

func TestCooldownForcedExit(t *testing.T) {
	a := AuxState{CooldownActive: true, CooldownSince: cd0}

	// below max window, no convergence data: stays locked
	assert.False(t, a.EvaluateExit(cd0.Add(5*time.Hour), 0, 0))
	assert.True(t, a.CooldownActive)

	assert.True(t, a.EvaluateExit(cd0.Add(6*time.Hour), 0, 0))
	assert.False(t, a.CooldownActive)
}

func TestCooldownConvergenceExit(t *testing.T) {
	a := AuxState{CooldownActive: true, CooldownSince: cd0}

	// 2h elapsed but consumption still suppressed: 1.0/2.0 = 50%
	assert.False(t, a.EvaluateExit(cd0.Add(2*time.Hour), 1.0, 2.0))
	assert.True(t, a.CooldownActive)

	// 1.9/2.0 = 95% meets the threshold
	assert.True(t, a.EvaluateExit(cd0.Add(3*time.Hour), 1.9, 2.0))
	assert.False(t, a.CooldownActive)
}

func TestCooldownConvergenceNeedsExpected(t *testing.T) {
	a := AuxState{CooldownActive: true, CooldownSince: cd0}

	// no expected consumption to verify against: ratio is meaningless
	assert.False(t, a.EvaluateExit(cd0.Add(3*time.Hour), 0.5, 0.0))
	assert.True(t, a.CooldownActive)
}

func TestCooldownTooEarly(t *testing.T) {
	a := AuxState{CooldownActive: true, CooldownSince: cd0}

	// perfect convergence but only one hour elapsed
	assert.False(t, a.EvaluateExit(cd0.Add(time.Hour), 2.0, 2.0))
	assert.True(t, a.CooldownActive)
}
