package model

// Wind classification thresholds in m/s (Beaufort fresh breeze / near gale).
const (
	HighWindThreshold    = 5.5
	ExtremeWindThreshold = 10.8
)

// Model tuning defaults.
const (
	DefaultGustFactor    = 0.6
	DefaultLearningRate  = 0.01
	DefaultBalancePoint  = 17.0
	DefaultMaxDeltaKWh   = 3.0 // cumulative meter jumps above this are spikes
	DefaultCloudCoverage = 50.0
	DefaultSolarAzimuth  = 180.0
)

// Learning behavior.
const (
	// PerUnitRateCap limits per-unit EMA rates to prevent oscillation.
	PerUnitRateCap = 0.03
	// BufferThreshold is the number of observations collected per bucket
	// before a cell is seeded with their mean.
	BufferThreshold = 4
	// EnergyGuard is the 10 Wh floor treated as "no consumption".
	EnergyGuard = 0.01
	// MinExtrapolationDeltaT is the minimum source distance from the
	// balance point (°C) required to trust thermodynamic scaling.
	MinExtrapolationDeltaT = 0.5
	// ColdRegimeDeltaT separates the mild regime (neighbor and wind
	// fallbacks allowed) from the cold regime (scaling forced).
	ColdRegimeDeltaT = 4.0
)

// Solar model.
const (
	SolarCoeffCap          = 5.0
	DefaultSolarCoeffHeat  = 0.15
	DefaultSolarCoeffCool  = 0.17
	SolarMinElevation      = 5.0
	SolarFullElevation     = 10.0
	SolarAzimuthBuffer     = 15.0
	SolarDiffuseFloor      = 0.1
	SolarBacksideFloor     = 0.05
	DualInterferenceKWh    = 0.1
)

// Mixed-mode bounds: hours whose aux fraction falls strictly inside this
// band mix regimes too much to train either model.
const (
	MixedModeLow  = 0.20
	MixedModeHigh = 0.80
)

// AuxDominanceFraction marks an hour as aux-dominant.
const AuxDominanceFraction = 0.80

// Aux cooldown, in whole hours evaluated at hour boundaries.
const (
	CooldownMinHours         = 2
	CooldownMaxHours         = 6
	CooldownConvergenceRatio = 0.95
)

// HourlyLogRetention caps the in-memory hourly log (90 days).
const HourlyLogRetention = 2160

// MinHoursForDailyRollup is the coverage needed to build a daily entry
// from hourly logs alone.
const MinHoursForDailyRollup = 20

// ConservationTolerance bounds the allowed drift between the global model
// and the sum of per-unit breakdowns.
const ConservationTolerance = 1e-2
