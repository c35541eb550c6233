package config

import (
	"fmt"

	"github.com/spf13/viper"

	"heating_analytics/internal/model"
)

// Config represents the complete application configuration
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Model    ModelConfig    `mapstructure:"model"`
	Solar    SolarConfig    `mapstructure:"solar"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SiteConfig describes the installation: its heating units and which of
// them the auxiliary source bypasses.
type SiteConfig struct {
	Units    []UnitConfig `mapstructure:"units"`
	Timezone string       `mapstructure:"timezone"`
	// AuxAffected lists unit IDs the auxiliary source offloads. Empty
	// means all units.
	AuxAffected []string `mapstructure:"aux_affected"`
}

// UnitConfig is one metered heating unit.
type UnitConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// ModelConfig holds the learning model tuning.
type ModelConfig struct {
	BalancePoint    float64 `mapstructure:"balance_point"`
	GustFactor      float64 `mapstructure:"gust_factor"`
	LearningRate    float64 `mapstructure:"learning_rate"`
	LearningEnabled bool    `mapstructure:"learning_enabled"`
	MaxEnergyDelta  float64 `mapstructure:"max_energy_delta"`
	// ThermalInertia selects the weighting of recent hour temperatures:
	// "fast", "normal" or "slow".
	ThermalInertia string `mapstructure:"thermal_inertia"`
}

// SolarConfig holds the passive solar gain model settings.
type SolarConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Azimuth is the facade direction in degrees (180 = south).
	Azimuth float64 `mapstructure:"azimuth"`
	// CorrectionPercent is how much of the potential gain the windows
	// let through (100 = no screens).
	CorrectionPercent float64 `mapstructure:"correction_percent"`
}

// MQTTConfig holds the live ingest broker settings.
type MQTTConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// StorageConfig holds persistence paths and intervals.
type StorageConfig struct {
	SnapshotPath     string `mapstructure:"snapshot_path"`
	ArchivePath      string `mapstructure:"archive_path"`
	SnapshotInterval string `mapstructure:"snapshot_interval"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InertiaWeights resolves the configured thermal inertia profile into
// hour weights, oldest to newest.
func (c *ModelConfig) InertiaWeights() []float64 {
	switch c.ThermalInertia {
	case "fast":
		return []float64{0.50, 0.50}
	case "slow":
		return []float64{0.05, 0.05, 0.06, 0.08, 0.10, 0.12, 0.12, 0.12, 0.10, 0.08, 0.06, 0.06}
	default:
		return []float64{0.20, 0.30, 0.30, 0.20}
	}
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("HEATMODEL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("site.timezone", "Local")

	v.SetDefault("model.balance_point", model.DefaultBalancePoint)
	v.SetDefault("model.gust_factor", model.DefaultGustFactor)
	v.SetDefault("model.learning_rate", model.DefaultLearningRate)
	v.SetDefault("model.learning_enabled", true)
	v.SetDefault("model.max_energy_delta", model.DefaultMaxDeltaKWh)
	v.SetDefault("model.thermal_inertia", "normal")

	v.SetDefault("solar.enabled", false)
	v.SetDefault("solar.azimuth", model.DefaultSolarAzimuth)
	v.SetDefault("solar.correction_percent", 100.0)

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "heating-analytics")
	v.SetDefault("mqtt.topic_prefix", "heating")

	v.SetDefault("storage.snapshot_path", "./data/snapshot.json")
	v.SetDefault("storage.archive_path", "./data/archive.db")
	v.SetDefault("storage.snapshot_interval", "5m")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if len(c.Site.Units) == 0 {
		return fmt.Errorf("site.units must contain at least one unit")
	}
	seen := make(map[string]bool, len(c.Site.Units))
	for _, u := range c.Site.Units {
		if u.ID == "" {
			return fmt.Errorf("site.units entries need an id")
		}
		if seen[u.ID] {
			return fmt.Errorf("duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true
	}
	for _, id := range c.Site.AuxAffected {
		if !seen[id] {
			return fmt.Errorf("site.aux_affected references unknown unit %q", id)
		}
	}

	if c.Model.LearningRate <= 0 || c.Model.LearningRate > 1 {
		return fmt.Errorf("model.learning_rate must be in (0, 1]")
	}
	if c.Model.GustFactor < 0 || c.Model.GustFactor > 1 {
		return fmt.Errorf("model.gust_factor must be between 0.0 and 1.0")
	}
	if c.Model.MaxEnergyDelta <= 0 {
		return fmt.Errorf("model.max_energy_delta must be positive")
	}
	switch c.Model.ThermalInertia {
	case "fast", "normal", "slow":
	default:
		return fmt.Errorf("model.thermal_inertia must be fast, normal or slow")
	}

	if c.Solar.Enabled {
		if c.Solar.Azimuth < 0 || c.Solar.Azimuth >= 360 {
			return fmt.Errorf("solar.azimuth must be in [0, 360)")
		}
		if c.Solar.CorrectionPercent < 0 || c.Solar.CorrectionPercent > 100 {
			return fmt.Errorf("solar.correction_percent must be between 0 and 100")
		}
	}

	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}
	if c.Storage.SnapshotPath == "" {
		return fmt.Errorf("storage.snapshot_path is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// UnitIDs returns the configured unit IDs in order.
func (c *Config) UnitIDs() []string {
	ids := make([]string, len(c.Site.Units))
	for i, u := range c.Site.Units {
		ids[i] = u.ID
	}
	return ids
}
