package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heating_analytics/internal/model"
)

var testBindings = map[string]EntityBinding{
	"sensor.outdoor_temp":   {Kind: model.SensorOutdoorTemp},
	"sensor.living_energy":  {Kind: model.SensorEnergyMeter, Unit: "unit_a"},
	"switch.aux_heating":    {Kind: model.SensorAuxSwitch},
	"select.living_mode":    {Kind: model.SensorUnitMode, Unit: "unit_a"},
}

func TestHistoryCSVParser_Parse(t *testing.T) {
	input := `entity_id,state,last_changed
sensor.outdoor_temp,-3.2,2026-01-10T06:00:00.000Z
sensor.living_energy,1204.7,2026-01-10T06:00:30.000Z
sensor.outdoor_temp,-3.4,2026-01-10T06:01:00.000Z`

	parser := NewHistoryCSVParser(testBindings)
	readings, err := parser.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, model.SensorOutdoorTemp, readings[0].Kind)
	assert.InDelta(t, -3.2, readings[0].Value, 0.001)
	assert.Equal(t, time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC), readings[0].Timestamp)

	assert.Equal(t, model.SensorEnergyMeter, readings[1].Kind)
	assert.Equal(t, "unit_a", readings[1].Unit)
	assert.InDelta(t, 1204.7, readings[1].Value, 0.001)
}

func TestHistoryCSVParser_SkipsUnknownAndUnavailable(t *testing.T) {
	input := `entity_id,state,last_changed
sensor.unrelated,42,2026-01-10T06:00:00.000Z
sensor.outdoor_temp,unavailable,2026-01-10T06:01:00.000Z
sensor.outdoor_temp,-3.2,2026-01-10T06:02:00.000Z`

	readings, err := NewHistoryCSVParser(testBindings).Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.InDelta(t, -3.2, readings[0].Value, 0.001)
}

func TestHistoryCSVParser_TextStates(t *testing.T) {
	input := `entity_id,state,last_changed
switch.aux_heating,on,2026-01-10T06:00:00.000Z
select.living_mode,guest_heating,2026-01-10T06:01:00.000Z`

	readings, err := NewHistoryCSVParser(testBindings).Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.InDelta(t, 1.0, readings[0].Value, 0.001)
	assert.Equal(t, "guest_heating", readings[1].Text)
	assert.Equal(t, "unit_a", readings[1].Unit)
}

func TestHistoryCSVParser_MissingColumn(t *testing.T) {
	input := `entity_id,state
sensor.outdoor_temp,-3.2`

	_, err := NewHistoryCSVParser(testBindings).Parse(strings.NewReader(input))
	assert.ErrorContains(t, err, "last_changed")
}

func TestDecodeTopic(t *testing.T) {
	now := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)

	r, ok := DecodeTopic("heating", "heating/weather/temp", "-3.2", now)
	require.True(t, ok)
	assert.Equal(t, model.SensorOutdoorTemp, r.Kind)
	assert.InDelta(t, -3.2, r.Value, 0.001)

	r, ok = DecodeTopic("heating", "heating/unit/unit_a/energy", "1204.7", now)
	require.True(t, ok)
	assert.Equal(t, model.SensorEnergyMeter, r.Kind)
	assert.Equal(t, "unit_a", r.Unit)

	r, ok = DecodeTopic("heating", "heating/unit/unit_a/mode", "cooling", now)
	require.True(t, ok)
	assert.Equal(t, model.SensorUnitMode, r.Kind)
	assert.Equal(t, "cooling", r.Text)

	r, ok = DecodeTopic("heating", "heating/aux", "on", now)
	require.True(t, ok)
	assert.Equal(t, model.SensorAuxSwitch, r.Kind)
	assert.InDelta(t, 1.0, r.Value, 0.001)
}

func TestDecodeTopicRejectsGarbage(t *testing.T) {
	now := time.Now()

	_, ok := DecodeTopic("heating", "other/weather/temp", "1", now)
	assert.False(t, ok)

	_, ok = DecodeTopic("heating", "heating/weather/pressure", "1013", now)
	assert.False(t, ok)

	_, ok = DecodeTopic("heating", "heating/weather/temp", "not-a-number", now)
	assert.False(t, ok)

	_, ok = DecodeTopic("heating", "heating/unit/unit_a/mode", "warp", now)
	assert.False(t, ok)
}
