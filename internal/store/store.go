// Package store holds the bounded, ordered visit log. Records append at
// the tail; when capacity is exceeded the oldest records are evicted.
// The whole log persists to one JSON file, rewritten atomically on every
// mutation so a crash never leaves a partial file behind.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/telemetry"
)

// DefaultCapacity is the retained-record limit when none is configured.
const DefaultCapacity = 1000

// Store is a bounded FIFO visit log with file persistence. Safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
	visits   []model.Visit
	logger   *slog.Logger

	appends   metric.Int64Counter
	evictions metric.Int64Counter
}

// Open loads the log from path, creating an empty store when the file
// does not exist. A corrupt file is moved aside and an unreadable one is
// left in place; either way the store starts empty with a warning.
// Persistence must never block startup.
func Open(path string, capacity int, logger *slog.Logger) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	meter := telemetry.Meter("raikyaku/store")
	appends, _ := meter.Int64Counter("raikyaku.store.appends",
		metric.WithDescription("Visit records appended"),
	)
	evictions, _ := meter.Int64Counter("raikyaku.store.evictions",
		metric.WithDescription("Visit records evicted at capacity"),
	)
	s := &Store{
		path:      path,
		capacity:  capacity,
		logger:    logger,
		appends:   appends,
		evictions: evictions,
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		logger.Warn("visit log unreadable, starting empty",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return s, nil
	}

	if err := json.Unmarshal(data, &s.visits); err != nil {
		quarantine := path + ".corrupt"
		if renameErr := os.Rename(path, quarantine); renameErr != nil {
			quarantine = "(left in place)"
		}
		logger.Warn("visit log corrupt, starting empty",
			slog.String("path", path),
			slog.String("moved_to", quarantine),
			slog.String("error", err.Error()),
		)
		s.visits = nil
		return s, nil
	}
	// Capacity may have been lowered since the file was written.
	if len(s.visits) > capacity {
		s.visits = append([]model.Visit(nil), s.visits[len(s.visits)-capacity:]...)
	}
	return s, nil
}

// Append adds a record at the tail, evicting the oldest records beyond
// capacity, and persists the new state. The in-memory log keeps the
// record even when persistence fails.
func (s *Store) Append(v model.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	s.visits = append(s.visits, v)
	if evicted := len(s.visits) - s.capacity; evicted > 0 {
		s.visits = append([]model.Visit(nil), s.visits[evicted:]...)
		s.evictions.Add(ctx, int64(evicted))
	}
	s.appends.Add(ctx, 1)

	if err := s.persistLocked(); err != nil {
		s.logger.Error("visit log persist failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// All returns the records oldest-first. The slice is a copy.
func (s *Store) All() []model.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Visit(nil), s.visits...)
}

// Len reports the current record count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visits)
}

// Capacity reports the configured retention limit.
func (s *Store) Capacity() int { return s.capacity }

// Clear removes every record and persists the empty state, returning the
// number of records removed.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.visits)
	s.visits = nil
	if err := s.persistLocked(); err != nil {
		return cleared, err
	}
	return cleared, nil
}

// persistLocked rewrites the log file via a temp file and rename, so
// readers only ever observe a complete JSON document. Callers hold mu.
func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.visits)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	if s.visits == nil {
		data = []byte("[]")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}
