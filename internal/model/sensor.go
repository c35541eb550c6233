package model

import "time"

// SensorKind identifies the role of an incoming measurement.
type SensorKind string

const (
	SensorOutdoorTemp  SensorKind = "outdoor_temp"
	SensorWindSpeed    SensorKind = "wind_speed"
	SensorWindGust     SensorKind = "wind_gust"
	SensorCloudCover   SensorKind = "cloud_cover"
	SensorCondition    SensorKind = "condition"
	SensorSunElevation SensorKind = "sun_elevation"
	SensorSunAzimuth   SensorKind = "sun_azimuth"
	SensorEnergyMeter  SensorKind = "energy_meter"
	SensorAuxSwitch    SensorKind = "aux_switch"
	SensorUnitMode     SensorKind = "unit_mode"
)

// SensorInfo holds display name and unit for a sensor kind.
type SensorInfo struct {
	Name string
	Unit string
}

// SensorCatalog maps every known SensorKind to its display name and unit.
var SensorCatalog = map[SensorKind]SensorInfo{
	SensorOutdoorTemp:  {Name: "Outdoor Temperature", Unit: "°C"},
	SensorWindSpeed:    {Name: "Wind Speed", Unit: "m/s"},
	SensorWindGust:     {Name: "Wind Gust", Unit: "m/s"},
	SensorCloudCover:   {Name: "Cloud Coverage", Unit: "%"},
	SensorCondition:    {Name: "Weather Condition", Unit: ""},
	SensorSunElevation: {Name: "Sun Elevation", Unit: "°"},
	SensorSunAzimuth:   {Name: "Sun Azimuth", Unit: "°"},
	SensorEnergyMeter:  {Name: "Energy Meter", Unit: "kWh"},
	SensorAuxSwitch:    {Name: "Auxiliary Heating", Unit: ""},
	SensorUnitMode:     {Name: "Unit Mode", Unit: ""},
}

// Reading is one decoded sensor sample. Numeric kinds use Value; the
// condition, mode, and switch kinds use Text. Unit is set for per-unit
// kinds (meter, mode), empty for site-wide weather.
type Reading struct {
	Timestamp time.Time
	Kind      SensorKind
	Unit      string
	Value     float64
	Text      string
}

// TimeRange is a half-open interval over readings.
type TimeRange struct {
	Start time.Time
	End   time.Time
}
