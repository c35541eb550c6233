package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heating_analytics/internal/config"
	"heating_analytics/internal/engine"
	"heating_analytics/internal/ingest"
	"heating_analytics/internal/learning"
	"heating_analytics/internal/model"
	"heating_analytics/internal/store"
	"heating_analytics/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %q: %w", cfg.Site.Timezone, err)
	}

	// Load the persisted snapshot, if any.
	snapshots := store.NewSnapshotStore(cfg.Storage.SnapshotPath, log)
	state, haveState, err := snapshots.Load()
	if err != nil {
		// A corrupt snapshot is not fatal: the rotated backups keep the
		// last good states, and the engine can relearn meanwhile.
		log.Error("snapshot unreadable, starting from empty models",
			slog.String("path", cfg.Storage.SnapshotPath),
			slog.Any("error", err))
		haveState = false
	}

	models := learning.NewModels()
	if haveState && state.Models != nil {
		models = state.Models
	}

	// Empty aux_affected in config means the auxiliary source offloads
	// every unit.
	var auxAffected []string
	if len(cfg.Site.AuxAffected) > 0 {
		auxAffected = cfg.Site.AuxAffected
	}

	eng := engine.New(engine.Config{
		Units:           cfg.UnitIDs(),
		AuxAffected:     auxAffected,
		BalancePoint:    cfg.Model.BalancePoint,
		GustFactor:      cfg.Model.GustFactor,
		LearningRate:    cfg.Model.LearningRate,
		MaxEnergyDelta:  cfg.Model.MaxEnergyDelta,
		LearningEnabled: cfg.Model.LearningEnabled,
		SolarEnabled:    cfg.Solar.Enabled,
		SolarAzimuth:    cfg.Solar.Azimuth,
		SolarCorrection: cfg.Solar.CorrectionPercent,
		InertiaWeights:  cfg.Model.InertiaWeights(),
		Location:        loc,
	}, models, state.SolarCoeffs, log)

	if haveState {
		eng.RestoreState(state)
		if n := eng.BackfillDaily(); n > 0 {
			log.Info("backfilled daily logs", slog.Int("days", n))
		}
	}

	// Durable archive is optional.
	if cfg.Storage.ArchivePath != "" {
		archive, err := store.OpenArchive(cfg.Storage.ArchivePath)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
		eng.SetArchiver(archive)
	}

	// WebSocket hub and engine event bridge.
	hub := ws.NewHub(log)
	eng.SetCallback(ws.NewBridge(hub, log))
	handler := ws.NewHandler(hub, eng, log)

	// Live ingest from the broker.
	sub := ingest.NewSubscriber(ingest.MQTTConfig{
		BrokerURL:   cfg.MQTT.BrokerURL,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, log)
	go func() {
		if err := sub.Run(ctx); err != nil {
			log.Error("mqtt subscriber stopped", slog.Any("error", err))
			stop()
		}
	}()

	snapshotInterval, err := time.ParseDuration(cfg.Storage.SnapshotInterval)
	if err != nil {
		return fmt.Errorf("parsing snapshot_interval: %w", err)
	}

	go feedEngine(ctx, eng, sub.Readings(), snapshots, hub, snapshotInterval, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws", handler)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", slog.String("addr", cfg.Server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	// Final snapshot so a restart picks up where we left off.
	if err := snapshots.Save(eng.ExportState()); err != nil {
		log.Error("final snapshot failed", slog.Any("error", err))
	}
	return nil
}

// feedEngine pumps broker readings into the engine, drives the minute
// tick, and saves periodic snapshots.
func feedEngine(ctx context.Context, eng *engine.Engine, readings <-chan model.Reading, snapshots *store.SnapshotStore, hub *ws.Hub, snapshotInterval time.Duration, log *slog.Logger) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	save := time.NewTicker(snapshotInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-readings:
			eng.ApplyReading(r)
		case now := <-tick.C:
			eng.Tick(now)
		case now := <-save.C:
			if err := snapshots.Save(eng.ExportState()); err != nil {
				log.Error("snapshot failed", slog.Any("error", err))
				continue
			}
			if msg, err := ws.NewEnvelope(ws.TypeSnapshotSaved, ws.SnapshotSavedPayload{SavedAt: now}); err == nil {
				hub.Broadcast(msg)
			}
		}
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
