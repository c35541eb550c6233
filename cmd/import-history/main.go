// import-history replays a Home Assistant history export through the
// engine to bootstrap the models before going live. The export is the
// standard entity_id,state,last_changed CSV; a bindings file maps each
// entity to its role.
//
// Bindings JSON:
//
//	{
//	  "sensor.outdoor_temp":      {"kind": "outdoor_temp"},
//	  "sensor.wind_speed":        {"kind": "wind_speed"},
//	  "sensor.living_room_energy": {"kind": "energy_meter", "unit": "living_room"},
//	  "climate.living_room_mode": {"kind": "unit_mode", "unit": "living_room"},
//	  "switch.fireplace":         {"kind": "aux_switch"}
//	}
//
// Usage:
//
//	import-history -config config.yaml -csv export.csv -bindings bindings.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"heating_analytics/internal/config"
	"heating_analytics/internal/engine"
	"heating_analytics/internal/ingest"
	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
	"heating_analytics/internal/store"
)

type bindingSpec struct {
	Kind string `json:"kind"`
	Unit string `json:"unit,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	csvPath := flag.String("csv", "", "path to history export CSV")
	bindingsPath := flag.String("bindings", "bindings.json", "path to entity bindings JSON")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: import-history -csv export.csv [-config config.yaml] [-bindings bindings.json]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	bindings, err := loadBindings(*bindingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bindings: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening CSV: %v\n", err)
		os.Exit(1)
	}
	readings, err := ingest.NewHistoryCSVParser(bindings).Parse(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing CSV: %v\n", err)
		os.Exit(1)
	}
	if len(readings) == 0 {
		fmt.Fprintln(os.Stderr, "No usable readings in export")
		os.Exit(1)
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading timezone: %v\n", err)
		os.Exit(1)
	}

	// Continue from an existing snapshot when present.
	snapshots := store.NewSnapshotStore(cfg.Storage.SnapshotPath, nil)
	state, haveState, err := snapshots.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading snapshot: %v\n", err)
		os.Exit(1)
	}
	models := learning.NewModels()
	if haveState && state.Models != nil {
		models = state.Models
	}

	var auxAffected []string
	if len(cfg.Site.AuxAffected) > 0 {
		auxAffected = cfg.Site.AuxAffected
	}

	eng := engine.New(engine.Config{
		Units:           cfg.UnitIDs(),
		AuxAffected:     auxAffected,
		BalancePoint:    cfg.Model.BalancePoint,
		GustFactor:      cfg.Model.GustFactor,
		LearningRate:    cfg.Model.LearningRate,
		MaxEnergyDelta:  cfg.Model.MaxEnergyDelta,
		LearningEnabled: true,
		SolarEnabled:    cfg.Solar.Enabled,
		SolarAzimuth:    cfg.Solar.Azimuth,
		SolarCorrection: cfg.Solar.CorrectionPercent,
		InertiaWeights:  cfg.Model.InertiaWeights(),
		Location:        loc,
	}, models, state.SolarCoeffs, nil)
	if haveState {
		eng.RestoreState(state)
	}

	// Replay in order: every reading updates state, every minute ticks
	// the accrual so hour and day boundaries close exactly as live.
	lastTick := time.Time{}
	for _, r := range readings {
		eng.ApplyReading(r)
		minute := r.Timestamp.Truncate(time.Minute)
		if minute.After(lastTick) {
			eng.Tick(r.Timestamp)
			lastTick = minute
		}
	}

	logs := eng.HourlyLogs()
	days := eng.BackfillDaily()

	if err := snapshots.Save(eng.ExportState()); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving snapshot: %v\n", err)
		os.Exit(1)
	}

	first := readings[0].Timestamp.In(loc)
	last := readings[len(readings)-1].Timestamp.In(loc)
	fmt.Printf("Replayed %d readings from %s to %s\n",
		len(readings), first.Format("2006-01-02 15:04"), last.Format("2006-01-02 15:04"))
	fmt.Printf("Closed hours:    %d\n", len(logs))
	fmt.Printf("Backfilled days: %d\n", days)
	fmt.Printf("Snapshot saved:  %s\n", cfg.Storage.SnapshotPath)
}

func loadBindings(path string) (map[string]ingest.EntityBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs map[string]bindingSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	bindings := make(map[string]ingest.EntityBinding, len(specs))
	for entity, spec := range specs {
		bindings[entity] = ingest.EntityBinding{
			Kind: model.SensorKind(spec.Kind),
			Unit: spec.Unit,
		}
	}
	return bindings, nil
}
