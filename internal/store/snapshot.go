package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"heating_analytics/internal/engine"
)

// snapshotVersion guards against loading snapshots written by an
// incompatible schema.
const snapshotVersion = 1

// defaultBackupKeep is how many rotated backups survive.
const defaultBackupKeep = 5

type envelope struct {
	Version int                   `json:"version"`
	SavedAt time.Time             `json:"saved_at"`
	Data    engine.PersistedState `json:"data"`
}

// SnapshotStore persists the engine state as a single JSON document.
// Writes go through a temp file and an atomic rename; the previous
// snapshot is rotated into a backup directory first.
type SnapshotStore struct {
	mu     sync.Mutex
	path   string
	keep   int
	log    *slog.Logger
}

// NewSnapshotStore returns a store writing to path. The directory is
// created on first save.
func NewSnapshotStore(path string, log *slog.Logger) *SnapshotStore {
	if log == nil {
		log = slog.Default()
	}
	return &SnapshotStore{path: path, keep: defaultBackupKeep, log: log}
}

// Save writes the state atomically and rotates the previous file into a
// backup.
func (s *SnapshotStore) Save(st engine.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	payload, err := json.MarshalIndent(envelope{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Data:    st,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.rotateBackup(); err != nil {
		// A failed backup must not block the save itself.
		s.log.Warn("snapshot backup rotation failed", slog.Any("error", err))
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file returns ok=false with no
// error, so a cold start is not an error path.
func (s *SnapshotStore) Load() (engine.PersistedState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return engine.PersistedState{}, false, nil
		}
		return engine.PersistedState{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return engine.PersistedState{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version != snapshotVersion {
		return engine.PersistedState{}, false, fmt.Errorf("snapshot version %d, want %d", env.Version, snapshotVersion)
	}
	return env.Data, true, nil
}

// rotateBackup moves the current snapshot into the backup directory and
// prunes old backups beyond the keep limit.
func (s *SnapshotStore) rotateBackup() error {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	dir := filepath.Join(filepath.Dir(s.path), "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("snapshot-%s-%s.json",
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
	if err := os.Rename(s.path, filepath.Join(dir, name)); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > s.keep {
		if err := os.Remove(filepath.Join(dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
