package ws

import (
	"log/slog"

	"heating_analytics/internal/engine"
	"heating_analytics/internal/model"
)

// Bridge implements engine.Callback and broadcasts engine events to the
// WebSocket hub. Events are marshaled here so a slow client never holds
// the engine lock longer than the channel send.
type Bridge struct {
	hub *Hub
	log *slog.Logger
}

func NewBridge(hub *Hub, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{hub: hub, log: log}
}

func (b *Bridge) OnState(s engine.LiveState) {
	msg, err := NewEnvelope(TypeState, s)
	if err != nil {
		b.log.Error("marshal live state", slog.Any("error", err))
		return
	}
	b.hub.Broadcast(msg)
}

func (b *Bridge) OnHourClosed(entry model.HourlyLog) {
	msg, err := NewEnvelope(TypeHourClosed, entry)
	if err != nil {
		b.log.Error("marshal hourly log", slog.Any("error", err))
		return
	}
	b.hub.Broadcast(msg)
}

func (b *Bridge) OnDayClosed(entry model.DailyLog) {
	msg, err := NewEnvelope(TypeDayClosed, entry)
	if err != nil {
		b.log.Error("marshal daily log", slog.Any("error", err))
		return
	}
	b.hub.Broadcast(msg)
}
