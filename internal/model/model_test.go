package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveWind_GustExcess(t *testing.T) {
	// 4.0 + (9.0 - 4.0) * 0.6 = 7.0
	assert.InDelta(t, 7.0, EffectiveWind(4.0, 9.0, 0.6), 0.001)
}

func TestEffectiveWind_GustBelowSpeed(t *testing.T) {
	// Gust below sustained speed contributes nothing.
	assert.InDelta(t, 6.0, EffectiveWind(6.0, 3.0, 0.6), 0.001)
}

func TestEffectiveWind_NegativeInputsReadAsCalm(t *testing.T) {
	assert.InDelta(t, 0.0, EffectiveWind(-1.0, -2.0, 0.6), 0.001)
}

func TestWindBucketFor_Thresholds(t *testing.T) {
	assert.Equal(t, WindNormal, WindBucketFor(5.49))
	assert.Equal(t, WindHigh, WindBucketFor(5.5))
	assert.Equal(t, WindHigh, WindBucketFor(10.79))
	assert.Equal(t, WindExtreme, WindBucketFor(10.8))
}

func TestTempKey_RoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "3", TempKey(2.5))
	assert.Equal(t, "2", TempKey(2.4))
	assert.Equal(t, "-3", TempKey(-2.5))
	assert.Equal(t, "0", TempKey(0.4))
}

func TestModeForTemp(t *testing.T) {
	assert.Equal(t, ModeHeating, ModeForTemp(10.0, 17.0))
	assert.Equal(t, ModeCooling, ModeForTemp(17.0, 17.0))
}

func TestMode_GuestBehavesAsBaseMode(t *testing.T) {
	assert.True(t, ModeGuestHeating.IsHeating())
	assert.True(t, ModeGuestCooling.IsCooling())
	assert.True(t, ModeGuestHeating.IsGuest())
	assert.False(t, ModeHeating.IsGuest())
}

func TestCloudCoverageForCondition(t *testing.T) {
	assert.InDelta(t, 0, CloudCoverageForCondition("sunny"), 0.001)
	assert.InDelta(t, 85, CloudCoverageForCondition("cloudy"), 0.001)
	// Unknown conditions fall back to the default.
	assert.InDelta(t, DefaultCloudCoverage, CloudCoverageForCondition("meteor-shower"), 0.001)
}
