// archive-stats summarizes the durable hourly/daily archive.
//
// Usage:
//
//	archive-stats -archive data/archive.db
//	archive-stats -archive data/archive.db -days 7
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"heating_analytics/internal/store"
)

func main() {
	archivePath := flag.String("archive", "data/archive.db", "path to the archive database")
	days := flag.Int("days", 0, "also list closed hours for the last N days")
	flag.Parse()

	archive, err := store.OpenArchive(*archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	stats, err := archive.ArchiveStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Hours archived:   %d\n", stats.HourlyCount)
	fmt.Printf("Days archived:    %d\n", stats.DailyCount)
	if stats.HourlyCount > 0 {
		fmt.Printf("First hour:       %s\n", stats.FirstHour.Format("2006-01-02 15:04"))
		fmt.Printf("Last hour:        %s\n", stats.LastHour.Format("2006-01-02 15:04"))
		fmt.Printf("Total actual:     %.1f kWh\n", stats.TotalKWh)
		fmt.Printf("Total expected:   %.1f kWh\n", stats.TotalExpected)
		fmt.Printf("Aux-heavy hours:  %d\n", stats.AuxHours)
	}

	if stats.HourlyCount == 0 {
		return
	}

	bands, err := archive.TempProfile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading temp profile: %v\n", err)
		os.Exit(1)
	}
	if len(bands) > 0 {
		fmt.Printf("\n%-8s %6s %12s %12s\n", "Temp", "Hours", "Avg actual", "Avg expected")
		for _, b := range bands {
			fmt.Printf("%5s C  %6d %10.3f   %10.3f\n", b.TempKey, b.Hours, b.AvgActual, b.AvgExpected)
		}
	}

	if *days <= 0 {
		return
	}

	from := stats.LastHour.AddDate(0, 0, -*days)
	hours, err := archive.HourlyRange(from, stats.LastHour.Add(time.Hour))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading hours: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%-17s %8s %8s %8s %6s %5s\n", "Hour", "Actual", "Expected", "Temp", "Wind", "Aux")
	for _, h := range hours {
		aux := ""
		if h.IsAuxDominant {
			aux = "yes"
		}
		fmt.Printf("%-17s %8.3f %8.3f %7.1fC %5.1f %5s\n",
			h.Timestamp.Format("2006-01-02 15:04"), h.ActualKWh, h.ExpectedKWh, h.Temp, h.EffectiveWind, aux)
	}
}
