package model

import "time"

// LearningStatus records what the learning pipeline did with an hour.
type LearningStatus string

const (
	StatusLearned          LearningStatus = "learned"
	StatusLearnedAux       LearningStatus = "learned_aux"
	StatusBuffered         LearningStatus = "buffered"
	StatusSeeded           LearningStatus = "seeded"
	StatusSkippedMixedMode LearningStatus = "skipped_mixed_mode"
	StatusSkippedDual      LearningStatus = "skipped_dual_interference"
	StatusCooldownPostAux  LearningStatus = "cooldown_post_aux"
	StatusSkippedLowEnergy LearningStatus = "skipped_low_energy"
	StatusSkippedGuest     LearningStatus = "skipped_guest"
	StatusSkippedOff       LearningStatus = "skipped_off"
	StatusDisabled         LearningStatus = "disabled"
)

// UnitHour is the per-unit slice of a closed hour.
type UnitHour struct {
	ActualKWh    float64        `json:"actual_kwh"`
	ExpectedKWh  float64        `json:"expected_kwh"`
	SolarKWh     float64        `json:"solar_kwh"`
	Mode         Mode           `json:"mode"`
	Status       LearningStatus `json:"status"`
}

// HourlyLog is one closed hour of observation and attribution.
type HourlyLog struct {
	Timestamp        time.Time           `json:"timestamp"`
	Temp             float64             `json:"temp"`
	EffectiveWind    float64             `json:"effective_wind"`
	WindBucket       WindBucket          `json:"wind_bucket"`
	TDD              float64             `json:"tdd"`
	ActualKWh        float64             `json:"actual_kwh"`
	ExpectedKWh      float64             `json:"expected_kwh"`
	SolarFactor      float64             `json:"solar_factor"`
	SolarImpactKWh   float64             `json:"solar_impact_kwh"`
	CloudCoverage    float64             `json:"cloud_coverage"`
	AuxMinutes       int                 `json:"aux_minutes"`
	AuxFraction      float64             `json:"aux_fraction"`
	IsAuxDominant    bool                `json:"is_aux_dominant"`
	WasCooldown      bool                `json:"was_cooldown_active"`
	Status           LearningStatus      `json:"learning_status"`
	MinutesObserved  int                 `json:"minutes_observed"`
	MinutesImputed   int                 `json:"minutes_imputed"`
	Units            map[string]UnitHour `json:"units,omitempty"`
}

// HourSlots carries one value per local hour of a day. Slots without data
// stay nil; a spring-forward hour remains nil for the whole day.
type HourSlots [24]*float64

// DailyLog aggregates a local day from its hourly logs.
type DailyLog struct {
	Date          string    `json:"date"` // YYYY-MM-DD, local
	ActualKWh     float64   `json:"actual_kwh"`
	ExpectedKWh   float64   `json:"expected_kwh"`
	SolarKWh      float64   `json:"solar_kwh"`
	MeanTemp      float64   `json:"mean_temp"`
	MeanWind      float64   `json:"mean_wind"`
	TDD           float64   `json:"tdd"`
	HoursObserved int       `json:"hours_observed"`
	HourlyTemp    HourSlots `json:"hourly_temp"`
	HourlyWind    HourSlots `json:"hourly_wind"`
	HourlyTDD     HourSlots `json:"hourly_tdd"`
	HourlyActual  HourSlots `json:"hourly_actual"`
	HourlySolar   HourSlots `json:"hourly_solar"`
	Source        string    `json:"source"` // "rollup" or "backfill"
}

// MeterReading is one sample of a cumulative per-unit energy counter.
type MeterReading struct {
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	KWh       float64   `json:"kwh"`
}
