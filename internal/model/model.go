package model

import (
	"math"
	"strconv"
)

// Mode is the operating mode of a heating unit. Guest modes behave like
// their base mode for physics but are excluded from aggregate learning.
type Mode string

const (
	ModeHeating      Mode = "heating"
	ModeCooling      Mode = "cooling"
	ModeOff          Mode = "off"
	ModeGuestHeating Mode = "guest_heating"
	ModeGuestCooling Mode = "guest_cooling"
)

// IsGuest reports whether the mode is a guest variant.
func (m Mode) IsGuest() bool {
	return m == ModeGuestHeating || m == ModeGuestCooling
}

// IsHeating reports whether the mode behaves as heating (guest included).
func (m Mode) IsHeating() bool {
	return m == ModeHeating || m == ModeGuestHeating
}

// IsCooling reports whether the mode behaves as cooling (guest included).
func (m Mode) IsCooling() bool {
	return m == ModeCooling || m == ModeGuestCooling
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeHeating, ModeCooling, ModeOff, ModeGuestHeating, ModeGuestCooling:
		return true
	}
	return false
}

// ModeForTemp derives the thermal mode implied by an outdoor temperature
// relative to the balance point.
func ModeForTemp(temp, balancePoint float64) Mode {
	if temp < balancePoint {
		return ModeHeating
	}
	return ModeCooling
}

// WindBucket classifies effective wind speed into the model's three regimes.
type WindBucket string

const (
	WindNormal  WindBucket = "normal"
	WindHigh    WindBucket = "high_wind"
	WindExtreme WindBucket = "extreme_wind"
)

// WindBucketFor maps an effective wind speed (m/s) to its bucket.
func WindBucketFor(effectiveWind float64) WindBucket {
	switch {
	case effectiveWind >= ExtremeWindThreshold:
		return WindExtreme
	case effectiveWind >= HighWindThreshold:
		return WindHigh
	default:
		return WindNormal
	}
}

// EffectiveWind combines sustained speed with a damped gust contribution.
// Gusts below the sustained speed are ignored; negative inputs read as calm.
func EffectiveWind(speed, gust, gustFactor float64) float64 {
	if speed < 0 {
		speed = 0
	}
	if gust < 0 {
		gust = 0
	}
	excess := gust - speed
	if excess < 0 {
		excess = 0
	}
	return speed + excess*gustFactor
}

// TempKey buckets a temperature to its integer model key, rounding half
// away from zero so -0.5 and 0.5 land in different buckets.
func TempKey(temp float64) string {
	return strconv.Itoa(int(math.Round(temp)))
}

// RoundTo rounds x to the given number of decimals.
func RoundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// BucketKey addresses one cell of a consumption model.
type BucketKey struct {
	TempKey string     `json:"temp_key"`
	Wind    WindBucket `json:"wind_bucket"`
}

// CloudCoverageMap translates weather condition strings to coverage percent.
var CloudCoverageMap = map[string]float64{
	"clear-night":     0,
	"sunny":           0,
	"partlycloudy":    50,
	"cloudy":          85,
	"rainy":           95,
	"pouring":         100,
	"fog":             100,
	"hail":            100,
	"lightning":       95,
	"lightning-rainy": 95,
	"snowy":           100,
	"snowy-rainy":     100,
	"windy":           50,
	"windy-variant":   50,
	"exceptional":     50,
}

// CloudCoverageForCondition resolves a condition string to a coverage
// percent, falling back to the default for unknown conditions.
func CloudCoverageForCondition(condition string) float64 {
	if v, ok := CloudCoverageMap[condition]; ok {
		return v
	}
	return DefaultCloudCoverage
}
