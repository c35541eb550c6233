// predict answers what-if questions against previously learned models:
// given a temperature, wind and solar factor, what consumption does the
// site expect and how does it split across units?
//
// Usage:
//
//	predict -temp -5 -wind 8
//	predict -temp 2 -wind 3 -aux
//	predict -snapshot data/snapshot.json -temp 0 -wind 5 -solar 0.6
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"heating_analytics/internal/engine"
	"heating_analytics/internal/store"
)

func main() {
	snapshotPath := flag.String("snapshot", "data/snapshot.json", "path to model snapshot JSON")
	temp := flag.Float64("temp", 0, "outdoor temperature in C")
	wind := flag.Float64("wind", 0, "effective wind speed in m/s")
	solarFactor := flag.Float64("solar", 0, "solar exposure factor 0..1")
	aux := flag.Bool("aux", false, "auxiliary heat source active")
	solarEnabled := flag.Bool("solar-model", true, "apply the passive solar model")
	flag.Parse()

	snapshots := store.NewSnapshotStore(*snapshotPath, nil)
	state, ok, err := snapshots.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading snapshot: %v\n", err)
		os.Exit(1)
	}
	if !ok || state.Models == nil {
		fmt.Fprintf(os.Stderr, "No snapshot at %s, nothing learned yet\n", *snapshotPath)
		os.Exit(1)
	}

	units := make([]string, 0, len(state.Models.UnitCorrelation))
	for unit := range state.Models.UnitCorrelation {
		units = append(units, unit)
	}
	sort.Strings(units)

	eng := engine.New(engine.Config{
		Units:        units,
		SolarEnabled: *solarEnabled,
	}, state.Models, state.SolarCoeffs, nil)

	bd := eng.Predict(*temp, *wind, *solarFactor, *aux)

	fmt.Printf("Conditions: %.1f C, wind %.1f m/s, solar %.2f, aux %v\n\n", *temp, *wind, *solarFactor, *aux)
	fmt.Printf("Expected total:    %8.3f kWh\n", bd.TotalKWh)
	fmt.Printf("Global base:       %8.3f kWh\n", bd.GlobalBaseKWh)
	if bd.GlobalAuxKWh > 0 {
		fmt.Printf("Aux reduction:     %8.3f kWh\n", bd.GlobalAuxKWh)
	}
	if bd.Totals.SolarKWh != 0 {
		fmt.Printf("Solar reduction:   %8.3f kWh\n", bd.Totals.SolarKWh)
	}
	if bd.Totals.UnspecifiedKWh > 0 {
		fmt.Printf("Unspecified:       %8.3f kWh\n", bd.Totals.UnspecifiedKWh)
	}
	if bd.Totals.UnassignedAux > 0 {
		fmt.Printf("Unassigned aux:    %8.3f kWh\n", bd.Totals.UnassignedAux)
	}

	if len(bd.Units) == 0 {
		return
	}

	fmt.Printf("\n%-16s %10s %10s %10s %10s\n", "Unit", "Net kWh", "Base kWh", "Aux kWh", "Solar kWh")
	for _, unit := range units {
		slice, ok := bd.Units[unit]
		if !ok {
			continue
		}
		clamp := ""
		if slice.Clamped {
			clamp = "  (clamped)"
		}
		fmt.Printf("%-16s %10.3f %10.3f %10.3f %10.3f%s\n",
			unit, slice.NetKWh, slice.BaseKWh, slice.AuxKWh, slice.SolarKWh, clamp)
	}
}
