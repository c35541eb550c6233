package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"heating_analytics/internal/model"
)

// Archive is the durable hourly/daily log sink backed by SQLite. The
// in-memory engine log stays the working set; the archive keeps the
// full history beyond the retention window.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS hourly_logs (
	ts              TEXT PRIMARY KEY,
	temp            REAL NOT NULL,
	effective_wind  REAL NOT NULL,
	wind_bucket     TEXT NOT NULL,
	tdd             REAL NOT NULL,
	actual_kwh      REAL NOT NULL,
	expected_kwh    REAL NOT NULL,
	aux_fraction    REAL NOT NULL,
	is_aux_dominant INTEGER NOT NULL,
	learning_status TEXT NOT NULL,
	payload         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_logs (
	date           TEXT PRIMARY KEY,
	actual_kwh     REAL NOT NULL,
	expected_kwh   REAL NOT NULL,
	tdd            REAL NOT NULL,
	mean_temp      REAL NOT NULL,
	hours_observed INTEGER NOT NULL,
	source         TEXT NOT NULL,
	payload        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hourly_status ON hourly_logs(learning_status);
`

// OpenArchive opens (and migrates) the archive database. WAL mode keeps
// readers off the writer's back.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// AppendHourly upserts one closed hour. Re-closing the same hour after a
// restart replaces the row.
func (a *Archive) AppendHourly(entry model.HourlyLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal hourly log: %w", err)
	}
	_, err = a.db.Exec(`
		INSERT INTO hourly_logs
			(ts, temp, effective_wind, wind_bucket, tdd, actual_kwh, expected_kwh,
			 aux_fraction, is_aux_dominant, learning_status, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
			temp=excluded.temp, effective_wind=excluded.effective_wind,
			wind_bucket=excluded.wind_bucket, tdd=excluded.tdd,
			actual_kwh=excluded.actual_kwh, expected_kwh=excluded.expected_kwh,
			aux_fraction=excluded.aux_fraction, is_aux_dominant=excluded.is_aux_dominant,
			learning_status=excluded.learning_status, payload=excluded.payload`,
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.Temp, entry.EffectiveWind, string(entry.WindBucket), entry.TDD,
		entry.ActualKWh, entry.ExpectedKWh, entry.AuxFraction,
		boolToInt(entry.IsAuxDominant), string(entry.Status), string(payload))
	if err != nil {
		return fmt.Errorf("insert hourly log: %w", err)
	}
	return nil
}

// AppendDaily upserts one closed day.
func (a *Archive) AppendDaily(entry model.DailyLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal daily log: %w", err)
	}
	_, err = a.db.Exec(`
		INSERT INTO daily_logs
			(date, actual_kwh, expected_kwh, tdd, mean_temp, hours_observed, source, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			actual_kwh=excluded.actual_kwh, expected_kwh=excluded.expected_kwh,
			tdd=excluded.tdd, mean_temp=excluded.mean_temp,
			hours_observed=excluded.hours_observed, source=excluded.source,
			payload=excluded.payload`,
		entry.Date, entry.ActualKWh, entry.ExpectedKWh, entry.TDD,
		entry.MeanTemp, entry.HoursObserved, entry.Source, string(payload))
	if err != nil {
		return fmt.Errorf("insert daily log: %w", err)
	}
	return nil
}

// HourlyRange returns archived hours within [from, to), oldest first.
func (a *Archive) HourlyRange(from, to time.Time) ([]model.HourlyLog, error) {
	rows, err := a.db.Query(
		`SELECT payload FROM hourly_logs WHERE ts >= ? AND ts < ? ORDER BY ts`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query hourly range: %w", err)
	}
	defer rows.Close()

	var out []model.HourlyLog
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry model.HourlyLog
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("decode hourly log: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Stats summarizes the archive for the inspection tool.
type Stats struct {
	HourlyCount   int       `json:"hourly_count"`
	DailyCount    int       `json:"daily_count"`
	FirstHour     time.Time `json:"first_hour"`
	LastHour      time.Time `json:"last_hour"`
	TotalKWh      float64   `json:"total_kwh"`
	TotalExpected float64   `json:"total_expected_kwh"`
	AuxHours      int       `json:"aux_dominant_hours"`
}

// ArchiveStats aggregates totals across the whole archive.
func (a *Archive) ArchiveStats() (Stats, error) {
	var st Stats
	var first, last sql.NullString

	err := a.db.QueryRow(`
		SELECT COUNT(*), MIN(ts), MAX(ts),
		       COALESCE(SUM(actual_kwh), 0), COALESCE(SUM(expected_kwh), 0),
		       COALESCE(SUM(is_aux_dominant), 0)
		FROM hourly_logs`).
		Scan(&st.HourlyCount, &first, &last, &st.TotalKWh, &st.TotalExpected, &st.AuxHours)
	if err != nil {
		return Stats{}, fmt.Errorf("hourly stats: %w", err)
	}
	if first.Valid {
		if ts, err := time.Parse(time.RFC3339, first.String); err == nil {
			st.FirstHour = ts
		}
	}
	if last.Valid {
		if ts, err := time.Parse(time.RFC3339, last.String); err == nil {
			st.LastHour = ts
		}
	}

	if err := a.db.QueryRow(`SELECT COUNT(*) FROM daily_logs`).Scan(&st.DailyCount); err != nil {
		return Stats{}, fmt.Errorf("daily stats: %w", err)
	}
	return st, nil
}

// TempBand is the archive's per-degree consumption profile row.
type TempBand struct {
	TempKey     string  `json:"temp_key"`
	Hours       int     `json:"hours"`
	AvgActual   float64 `json:"avg_actual_kwh"`
	AvgExpected float64 `json:"avg_expected_kwh"`
}

// TempProfile groups archived hours by rounded temperature, coldest
// first.
func (a *Archive) TempProfile() ([]TempBand, error) {
	rows, err := a.db.Query(`
		SELECT CAST(ROUND(temp) AS INTEGER), COUNT(*),
		       AVG(actual_kwh), AVG(expected_kwh)
		FROM hourly_logs
		GROUP BY CAST(ROUND(temp) AS INTEGER)
		ORDER BY CAST(ROUND(temp) AS INTEGER)`)
	if err != nil {
		return nil, fmt.Errorf("temp profile: %w", err)
	}
	defer rows.Close()

	var out []TempBand
	for rows.Next() {
		var band TempBand
		var key int
		if err := rows.Scan(&key, &band.Hours, &band.AvgActual, &band.AvgExpected); err != nil {
			return nil, fmt.Errorf("scan temp band: %w", err)
		}
		band.TempKey = fmt.Sprintf("%d", key)
		out = append(out, band)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
