package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"heating_analytics/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler manages WebSocket connections and routes client requests to
// the engine.
type Handler struct {
	hub    *Hub
	engine *engine.Engine
	log    *slog.Logger
}

func NewHandler(hub *Hub, eng *engine.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{hub: hub, engine: eng, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()

	h.log.Info("websocket client connected", slog.String("client", client.ID))

	// Push the current breakdown right away so the client can render.
	h.sendBreakdown(client)

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		h.log.Info("websocket client disconnected", slog.String("client", c.ID))
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", slog.Any("error", err))
			}
			return
		}
		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.sendError(c, "invalid message")
		return
	}

	switch env.Type {
	case TypeGetState:
		h.send(c, TypeState, h.engine.LiveState(time.Now()))

	case TypeGetBreakdown:
		// An optional payload asks for a breakdown at explicit
		// conditions instead of the live ones.
		if len(env.Payload) > 0 {
			var p PredictPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				h.sendError(c, "invalid breakdown payload")
				return
			}
			h.send(c, TypeBreakdown, h.engine.Predict(p.Temp, p.EffectiveWind, p.SolarFactor, p.AuxActive))
			return
		}
		h.sendBreakdown(c)

	case TypeGetHistory:
		p := HistoryPayload{Hours: 24}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				h.sendError(c, "invalid history payload")
				return
			}
		}
		logs := h.engine.HourlyLogs()
		if p.Hours > 0 && len(logs) > p.Hours {
			logs = logs[len(logs)-p.Hours:]
		}
		h.send(c, TypeHistory, HistoryResponse{Hours: logs})

	case TypePredict:
		var p PredictPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, "invalid predict payload")
			return
		}
		bd := h.engine.Predict(p.Temp, p.EffectiveWind, p.SolarFactor, p.AuxActive)
		h.send(c, TypePrediction, PredictionResponse{Request: p, Breakdown: bd})

	default:
		h.sendError(c, "unknown message type "+env.Type)
	}
}

func (h *Handler) sendBreakdown(c *Client) {
	bd, ok := h.engine.CurrentBreakdown()
	if !ok {
		h.sendError(c, "no weather data yet")
		return
	}
	h.send(c, TypeBreakdown, bd)
}

func (h *Handler) send(c *Client, msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Error("marshal response", slog.Any("error", err))
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Warn("client buffer full, dropping response", slog.String("client", c.ID))
	}
}

func (h *Handler) sendError(c *Client, message string) {
	h.send(c, TypeError, ErrorPayload{Message: message})
}
