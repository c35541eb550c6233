package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"heating_analytics/internal/model"
)

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Subscriber consumes sensor readings from an MQTT broker and feeds them
// into a channel. Topic scheme under the prefix:
//
//	<prefix>/weather/<kind>        numeric or text payload
//	<prefix>/unit/<id>/energy      cumulative kWh counter
//	<prefix>/unit/<id>/mode        heating|cooling|off|guest_heating|guest_cooling
//	<prefix>/aux                   on|off
type Subscriber struct {
	cfg    MQTTConfig
	client mqtt.Client
	out    chan model.Reading
	log    *slog.Logger
}

// NewSubscriber returns an unconnected subscriber.
func NewSubscriber(cfg MQTTConfig, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		cfg: cfg,
		out: make(chan model.Reading, 256),
		log: log,
	}
}

// Readings is the decoded reading stream.
func (s *Subscriber) Readings() <-chan model.Reading {
	return s.out
}

// Run connects, subscribes and blocks until the context is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			topic := s.cfg.TopicPrefix + "/#"
			token := c.Subscribe(topic, 1, s.handleMessage)
			token.Wait()
			if token.Error() != nil {
				s.log.Error("mqtt subscribe failed",
					slog.String("topic", topic),
					slog.Any("error", token.Error()))
				return
			}
			s.log.Info("mqtt subscribed", slog.String("topic", topic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("mqtt connection lost", slog.Any("error", err))
		})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	<-ctx.Done()
	s.client.Disconnect(250)
	close(s.out)
	return nil
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	reading, ok := DecodeTopic(s.cfg.TopicPrefix, msg.Topic(), string(msg.Payload()), time.Now())
	if !ok {
		s.log.Debug("ignoring mqtt message", slog.String("topic", msg.Topic()))
		return
	}
	select {
	case s.out <- reading:
	default:
		s.log.Warn("reading channel full, dropping sample", slog.String("topic", msg.Topic()))
	}
}

// weatherKinds are the accepted <prefix>/weather/<kind> suffixes.
var weatherKinds = map[string]model.SensorKind{
	"temp":      model.SensorOutdoorTemp,
	"wind":      model.SensorWindSpeed,
	"gust":      model.SensorWindGust,
	"cloud":     model.SensorCloudCover,
	"condition": model.SensorCondition,
	"elevation": model.SensorSunElevation,
	"azimuth":   model.SensorSunAzimuth,
}

// DecodeTopic maps one MQTT message onto a model reading. Returns false
// for topics outside the scheme or payloads that do not parse.
func DecodeTopic(prefix, topic, payload string, now time.Time) (model.Reading, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return model.Reading{}, false
	}
	parts := strings.Split(rest, "/")
	payload = strings.TrimSpace(payload)

	switch {
	case parts[0] == "weather" && len(parts) == 2:
		kind, ok := weatherKinds[parts[1]]
		if !ok {
			return model.Reading{}, false
		}
		r := model.Reading{Timestamp: now, Kind: kind}
		if kind == model.SensorCondition {
			r.Text = payload
			return r, true
		}
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return model.Reading{}, false
		}
		r.Value = v
		return r, true

	case parts[0] == "unit" && len(parts) == 3:
		switch parts[2] {
		case "energy":
			v, err := strconv.ParseFloat(payload, 64)
			if err != nil {
				return model.Reading{}, false
			}
			return model.Reading{Timestamp: now, Kind: model.SensorEnergyMeter, Unit: parts[1], Value: v}, true
		case "mode":
			if !model.Mode(payload).Valid() {
				return model.Reading{}, false
			}
			return model.Reading{Timestamp: now, Kind: model.SensorUnitMode, Unit: parts[1], Text: payload}, true
		}
		return model.Reading{}, false

	case parts[0] == "aux" && len(parts) == 1:
		r := model.Reading{Timestamp: now, Kind: model.SensorAuxSwitch, Text: payload}
		if payload == "on" || payload == "1" || payload == "true" {
			r.Value = 1.0
		}
		return r, true
	}
	return model.Reading{}, false
}
