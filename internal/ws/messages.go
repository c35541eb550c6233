package ws

import (
	"encoding/json"
	"time"

	"heating_analytics/internal/engine"
	"heating_analytics/internal/model"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeGetState     = "state:get"
	TypeGetBreakdown = "breakdown:get"
	TypeGetHistory   = "history:get"
	TypePredict      = "predict"

	// Server -> Client
	TypeState         = "state"
	TypeBreakdown     = "breakdown"
	TypeSnapshotSaved = "snapshot:saved"
	TypeHourClosed    = "hour:closed"
	TypeDayClosed     = "day:closed"
	TypeHistory       = "history"
	TypePrediction    = "prediction"
	TypeError         = "error"
)

// Client -> Server payloads

// PredictPayload asks the models for a what-if prediction.
type PredictPayload struct {
	Temp          float64 `json:"temp"`
	EffectiveWind float64 `json:"effective_wind"`
	SolarFactor   float64 `json:"solar_factor"`
	AuxActive     bool    `json:"aux_active"`
}

// HistoryPayload limits the hourly log slice returned.
type HistoryPayload struct {
	Hours int `json:"hours"`
}

// Server -> Client payloads

// HistoryResponse carries recent closed hours, oldest first.
type HistoryResponse struct {
	Hours []model.HourlyLog `json:"hours"`
}

// ErrorPayload reports a rejected client message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SnapshotSavedPayload announces a completed persistence cycle.
type SnapshotSavedPayload struct {
	SavedAt time.Time `json:"saved_at"`
}

// PredictionResponse pairs the request conditions with the breakdown.
type PredictionResponse struct {
	Request   PredictPayload   `json:"request"`
	Breakdown engine.Breakdown `json:"breakdown"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
