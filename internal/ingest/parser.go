package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"heating_analytics/internal/model"
)

// Parser reads sensor data from a source and returns readings.
type Parser interface {
	Parse(r io.Reader) ([]model.Reading, error)
}

// EntityBinding maps an exported entity ID to its role in the model.
type EntityBinding struct {
	Kind model.SensorKind
	// Unit is the heating unit ID for per-unit kinds, empty for weather.
	Unit string
}

// HistoryCSVParser parses Home Assistant style history exports:
//
//	entity_id,state,last_changed
//	sensor.outdoor_temp,-3.2,2026-01-10T06:00:00.000Z
//
// Rows with unknown entities or unparseable states are skipped; the
// export format routinely contains "unavailable" markers.
type HistoryCSVParser struct {
	Bindings map[string]EntityBinding
}

// NewHistoryCSVParser returns a parser resolving entities through the
// given bindings.
func NewHistoryCSVParser(bindings map[string]EntityBinding) *HistoryCSVParser {
	return &HistoryCSVParser{Bindings: bindings}
}

func (p *HistoryCSVParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"entity_id", "state", "last_changed"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv missing %q column", required)
		}
	}

	var readings []model.Reading
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		binding, ok := p.Bindings[record[col["entity_id"]]]
		if !ok {
			continue
		}

		ts, err := parseHistoryTime(record[col["last_changed"]])
		if err != nil {
			continue
		}

		state := strings.TrimSpace(record[col["state"]])
		reading := model.Reading{
			Timestamp: ts,
			Kind:      binding.Kind,
			Unit:      binding.Unit,
		}

		switch binding.Kind {
		case model.SensorCondition, model.SensorUnitMode:
			reading.Text = state
		case model.SensorAuxSwitch:
			reading.Text = state
			if state == "on" {
				reading.Value = 1.0
			}
		default:
			v, err := strconv.ParseFloat(state, 64)
			if err != nil {
				continue
			}
			reading.Value = v
		}

		readings = append(readings, reading)
	}
	return readings, nil
}

func parseHistoryTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07:00"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
