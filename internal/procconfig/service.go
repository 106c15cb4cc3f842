package procconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Service owns the runtime configuration. It is constructed explicitly at
// startup and passed by handle into the manager and trade gate, so tests can
// inject their own instance.
type Service struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
	snap   Snapshot
}

// NewService creates a Service with built-in defaults, then overlays the
// persisted JSON document at path when one exists. A missing file is not an
// error; a corrupt one is logged and ignored.
func NewService(path string, logger *slog.Logger) *Service {
	s := &Service{
		path:   path,
		logger: logger.With(slog.String("component", "procconfig")),
		snap:   Defaults(),
	}
	s.snap.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("config file unreadable, using defaults",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return s
	}

	var persisted Snapshot
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.logger.Error("config file corrupt, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return s
	}
	if persisted.TaskFlows == nil {
		persisted.TaskFlows = Defaults().TaskFlows
	}
	if err := persisted.Validate(); err != nil {
		s.logger.Error("persisted config invalid, using defaults",
			slog.String("error", err.Error()),
		)
		return s
	}
	s.snap = persisted
	s.logger.Info("loaded runtime configuration", slog.String("path", path))
	return s
}

// Get returns a copy of the current configuration.
func (s *Service) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Update merges the partial update, validates the result, refreshes
// last_updated, and persists the whole document. On validation failure the
// previous configuration is kept and nothing is written.
func (s *Service) Update(u Update) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.clone()
	apply(&next, u)
	if err := next.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("procconfig: %w", err)
	}
	next.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	if err := s.persist(next); err != nil {
		s.logger.Error("persist failed", slog.String("error", err.Error()))
		return Snapshot{}, err
	}
	s.snap = next
	return next.clone(), nil
}

// persist writes the document atomically: temp file in the same directory,
// then rename, so a crash mid-write never leaves a truncated config.
func (s *Service) persist(snap Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("procconfig: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("procconfig: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("procconfig: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("procconfig: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("procconfig: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("procconfig: rename: %w", err)
	}
	return nil
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.TaskFlows = make(map[string]bool, len(s.TaskFlows))
	for k, v := range s.TaskFlows {
		out.TaskFlows[k] = v
	}
	return out
}
