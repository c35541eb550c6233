// anomaly-detect flags days whose consumption deviated unusually far
// from what the learned models expected. Deviations are normalized
// against the whole history, so a site that always runs 10% hot is not
// flagged every day.
//
// Usage:
//
//	anomaly-detect -snapshot data/snapshot.json
//	anomaly-detect -snapshot data/snapshot.json -sigma 1.5 -min-kwh 2
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"

	"heating_analytics/internal/store"
)

type dayStats struct {
	Date         string
	ActualKWh    float64
	ExpectedKWh  float64
	DeviationPct float64
	MeanTemp     float64
	TDD          float64
	Category     string
	Cause        string
}

func main() {
	snapshotPath := flag.String("snapshot", "data/snapshot.json", "path to model snapshot JSON")
	sigma := flag.Float64("sigma", 2.0, "standard deviation threshold for flagging anomalies")
	minKWh := flag.Float64("min-kwh", 1.0, "minimum daily kWh to consider a day")
	flag.Parse()

	snapshots := store.NewSnapshotStore(*snapshotPath, nil)
	state, ok, err := snapshots.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading snapshot: %v\n", err)
		os.Exit(1)
	}
	if !ok || len(state.DailyLogs) == 0 {
		fmt.Fprintln(os.Stderr, "No daily history in snapshot yet")
		os.Exit(1)
	}

	dates := make([]string, 0, len(state.DailyLogs))
	for date := range state.DailyLogs {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var allDays []dayStats
	var tempSum float64
	for _, date := range dates {
		d := state.DailyLogs[date]
		if d.ActualKWh < *minKWh || d.ExpectedKWh <= 0 {
			continue
		}
		allDays = append(allDays, dayStats{
			Date:         date,
			ActualKWh:    d.ActualKWh,
			ExpectedKWh:  d.ExpectedKWh,
			DeviationPct: (d.ActualKWh - d.ExpectedKWh) / d.ExpectedKWh * 100,
			MeanTemp:     d.MeanTemp,
			TDD:          d.TDD,
		})
		tempSum += d.MeanTemp
	}

	if len(allDays) == 0 {
		fmt.Println("No days with sufficient data found.")
		return
	}

	n := float64(len(allDays))
	meanTemp := tempSum / n

	var sum, sumSq float64
	for _, d := range allDays {
		sum += d.DeviationPct
		sumSq += d.DeviationPct * d.DeviationPct
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)

	var flagged []dayStats
	for i := range allDays {
		d := &allDays[i]
		if math.Abs(d.DeviationPct-mean) > *sigma*stddev {
			if d.ActualKWh > d.ExpectedKWh {
				d.Category = "HIGH"
			} else {
				d.Category = "LOW"
			}
			d.Cause = inferCause(d, meanTemp)
			flagged = append(flagged, *d)
		}
	}

	fmt.Println()
	fmt.Println("Consumption Anomaly Detection")
	fmt.Printf("  Days analyzed: %d (%s to %s)\n", len(allDays), allDays[0].Date, allDays[len(allDays)-1].Date)
	fmt.Printf("  Sigma threshold: %.1f | Min daily kWh: %.1f\n", *sigma, *minKWh)
	fmt.Printf("  Mean deviation: %+.1f%%\n", mean)
	fmt.Printf("  Std deviation:  %.1f%%\n", stddev)
	fmt.Printf("  Anomalies found: %d (%.1f%%)\n", len(flagged), 100*float64(len(flagged))/n)
	fmt.Println()

	if len(flagged) == 0 {
		fmt.Println("  No anomalous days detected.")
		return
	}

	fmt.Printf("  %-12s │ %8s │ %8s │ %8s │ %6s │ %5s │ %s\n",
		"Date", "Actual", "Expected", "Dev %", "Temp", "Type", "Possible Cause")
	fmt.Printf("  ─────────────┼──────────┼──────────┼──────────┼────────┼───────┼─────────────────────\n")

	for _, d := range flagged {
		fmt.Printf("  %-12s │ %7.1f  │ %7.1f  │ %+7.1f  │ %5.1f  │ %5s │ %s\n",
			d.Date, d.ActualKWh, d.ExpectedKWh, d.DeviationPct, d.MeanTemp, d.Category, d.Cause)
	}
	fmt.Println()
}

func inferCause(d *dayStats, meanTemp float64) string {
	tempDev := d.MeanTemp - meanTemp
	if d.Category == "HIGH" {
		if tempDev < -3 {
			return "Unusually cold, model still catching up"
		}
		if d.DeviationPct > 100 {
			return "Very high usage: guests or appliance fault?"
		}
		return "Above-normal consumption"
	}
	if tempDev > 3 {
		return "Warmer than usual, less heating"
	}
	if d.DeviationPct < -50 {
		return "Very low usage: away from home?"
	}
	return "Below-normal consumption"
}
