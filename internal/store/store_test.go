package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heating_analytics/internal/engine"
	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
	"heating_analytics/internal/solar"
)

var t0 = time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)

func sampleState() engine.PersistedState {
	m := learning.NewModels()
	m.Correlation.Set(model.BucketKey{TempKey: "5", Wind: model.WindNormal}, 3.0)
	return engine.PersistedState{
		Models:      m,
		SolarCoeffs: solar.UnitCoeffs{"unit_a": {"5": 0.8}},
		LastMeters:  map[string]float64{"unit_a": 100.4},
		HourlyLogs: []model.HourlyLog{{
			Timestamp: t0, Temp: 5.0, WindBucket: model.WindNormal,
			ActualKWh: 2.9, ExpectedKWh: 3.0, Status: model.StatusLearned,
		}},
		DailyLogs:  map[string]model.DailyLog{},
		CurrentDay: "2026-01-10",
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s := NewSnapshotStore(path, nil)

	require.NoError(t, s.Save(sampleState()))

	loaded, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)

	v, found := loaded.Models.Correlation.Value(model.BucketKey{TempKey: "5", Wind: model.WindNormal})
	require.True(t, found)
	assert.InDelta(t, 3.0, v, 1e-9)
	assert.InDelta(t, 0.8, loaded.SolarCoeffs["unit_a"]["5"], 1e-9)
	assert.InDelta(t, 100.4, loaded.LastMeters["unit_a"], 1e-9)
	require.Len(t, loaded.HourlyLogs, 1)
	assert.Equal(t, model.StatusLearned, loaded.HourlyLogs[0].Status)
	assert.Equal(t, "2026-01-10", loaded.CurrentDay)
}

func TestSnapshotMissingFile(t *testing.T) {
	s := NewSnapshotStore(filepath.Join(t.TempDir(), "missing.json"), nil)

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotBackupRotation(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotStore(filepath.Join(dir, "snapshot.json"), nil)
	s.keep = 2

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(sampleState()))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 2)
}

func TestSnapshotRejectsWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "data": {}}`), 0o644))

	_, _, err := NewSnapshotStore(path, nil).Load()
	assert.Error(t, err)
}

func TestArchiveAppendAndRange(t *testing.T) {
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer a.Close()

	for h := 0; h < 3; h++ {
		entry := model.HourlyLog{
			Timestamp:   t0.Add(time.Duration(h) * time.Hour),
			Temp:        5.0,
			WindBucket:  model.WindNormal,
			ActualKWh:   1.0,
			ExpectedKWh: 1.1,
			Status:      model.StatusLearned,
		}
		require.NoError(t, a.AppendHourly(entry))
	}

	logs, err := a.HourlyRange(t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, t0, logs[0].Timestamp)

	st, err := a.ArchiveStats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.HourlyCount)
	assert.InDelta(t, 3.0, st.TotalKWh, 1e-9)
	assert.Equal(t, t0, st.FirstHour)
}

func TestArchiveHourlyUpsert(t *testing.T) {
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer a.Close()

	entry := model.HourlyLog{Timestamp: t0, ActualKWh: 1.0, Status: model.StatusBuffered}
	require.NoError(t, a.AppendHourly(entry))

	// re-closing the same hour replaces the row
	entry.ActualKWh = 2.0
	entry.Status = model.StatusLearned
	require.NoError(t, a.AppendHourly(entry))

	st, err := a.ArchiveStats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.HourlyCount)
	assert.InDelta(t, 2.0, st.TotalKWh, 1e-9)
}

func TestArchiveDaily(t *testing.T) {
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.AppendDaily(model.DailyLog{
		Date: "2026-01-10", ActualKWh: 24.0, HoursObserved: 24, Source: "rollup",
	}))
	require.NoError(t, a.AppendDaily(model.DailyLog{
		Date: "2026-01-10", ActualKWh: 25.0, HoursObserved: 24, Source: "backfill",
	}))

	st, err := a.ArchiveStats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.DailyCount)
}

func TestArchiveTempProfile(t *testing.T) {
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer a.Close()

	for h, temp := range []float64{-4.8, -5.2, 3.0} {
		entry := model.HourlyLog{
			Timestamp:   t0.Add(time.Duration(h) * time.Hour),
			Temp:        temp,
			ActualKWh:   2.0,
			ExpectedKWh: 2.2,
			Status:      model.StatusLearned,
		}
		require.NoError(t, a.AppendHourly(entry))
	}

	bands, err := a.TempProfile()
	require.NoError(t, err)
	require.Len(t, bands, 2)

	assert.Equal(t, "-5", bands[0].TempKey)
	assert.Equal(t, 2, bands[0].Hours)
	assert.InDelta(t, 2.0, bands[0].AvgActual, 1e-9)
	assert.Equal(t, "3", bands[1].TempKey)
}
