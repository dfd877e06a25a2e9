// Package consent holds the visitor's data-collection decision: a
// three-state flag persisted as a scalar file. The decision is terminal;
// capture runs only while the gate allows it.
package consent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ashita-ai/raikyaku/internal/model"
)

// ErrDecided is returned when a decision is submitted after the gate
// already reached a terminal state.
var ErrDecided = errors.New("consent: already decided")

// ErrInvalidDecision is returned for a decision that is not accepted or
// declined.
var ErrInvalidDecision = errors.New("consent: decision must be accepted or declined")

// Gate is the persisted consent state machine. Safe for concurrent use.
type Gate struct {
	mu         sync.Mutex
	path       string
	state      model.ConsentState
	decidedAt  *time.Time
	autoAccept bool
	logger     *slog.Logger
}

// Open loads the persisted decision from path. A missing file means
// undecided; unreadable content is treated as undecided with a warning.
// With autoAccept set, the first Allowed check records acceptance
// instead of blocking on an undecided state.
func Open(path string, autoAccept bool, logger *slog.Logger) (*Gate, error) {
	g := &Gate{path: path, state: model.ConsentUndecided, autoAccept: autoAccept, logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return g, nil
	case err != nil:
		logger.Warn("consent file unreadable, treating as undecided",
			slog.String("path", path), slog.String("error", err.Error()))
		return g, nil
	}

	state := model.ConsentState(strings.TrimSpace(string(data)))
	if !state.Decided() {
		logger.Warn("consent file unreadable, treating as undecided",
			slog.String("path", path), slog.String("content", string(data)))
		return g, nil
	}
	g.state = state
	if info, err := os.Stat(path); err == nil {
		mod := info.ModTime().UTC()
		g.decidedAt = &mod
	}
	return g, nil
}

// State returns the current consent state.
func (g *Gate) State() model.ConsentState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// DecidedAt returns when the decision was made, or nil while undecided.
func (g *Gate) DecidedAt() *time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decidedAt
}

// Decide records a terminal decision and persists it. A second decision
// fails with ErrDecided regardless of its value.
func (g *Gate) Decide(state model.ConsentState) error {
	if !state.Decided() {
		return ErrInvalidDecision
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decideLocked(state)
}

// Allowed reports whether capture may run. While undecided, the
// auto-accept flag converts the first check into an acceptance.
func (g *Gate) Allowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case model.ConsentAccepted:
		return true
	case model.ConsentUndecided:
		if !g.autoAccept {
			return false
		}
		if err := g.decideLocked(model.ConsentAccepted); err != nil {
			g.logger.Error("auto-accept persist failed", slog.String("error", err.Error()))
			return false
		}
		return true
	}
	return false
}

func (g *Gate) decideLocked(state model.ConsentState) error {
	if g.state.Decided() {
		return ErrDecided
	}
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(string(state)+"\n"), 0o600); err != nil {
		return fmt.Errorf("consent: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("consent: rename: %w", err)
	}
	now := time.Now().UTC()
	g.state = state
	g.decidedAt = &now
	g.logger.Info("consent decided", slog.String("state", string(state)))
	return nil
}
