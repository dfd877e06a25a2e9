package raikyaku

import (
	"sync/atomic"
	"time"
)

// Session tracks visitor interaction counters over one page-load
// lifetime: created when the page loads, fed by event observers, and
// snapshotted into a capture request. All methods are safe for
// concurrent use; counters only grow.
type Session struct {
	start      time.Time
	clicks     atomic.Int64
	keystrokes atomic.Int64
	// scrollDepth holds the deepest scroll position seen, in percent.
	scrollDepth atomic.Int64
	returning   bool
}

// NewSession returns a Session whose duration clock starts now.
// returning marks a visitor seen in a previous session.
func NewSession(returning bool) *Session {
	return &Session{start: time.Now(), returning: returning}
}

// Click records one click event.
func (s *Session) Click() { s.clicks.Add(1) }

// Keystroke records one keystroke event.
func (s *Session) Keystroke() { s.keystrokes.Add(1) }

// Scroll records a scroll position as a percentage of page height.
// Only the maximum is retained.
func (s *Session) Scroll(percent int) {
	if percent < 0 {
		return
	}
	if percent > 100 {
		percent = 100
	}
	for {
		cur := s.scrollDepth.Load()
		if int64(percent) <= cur {
			return
		}
		if s.scrollDepth.CompareAndSwap(cur, int64(percent)) {
			return
		}
	}
}

// Snapshot returns the counters as a capture request section. The
// session keeps running; repeated snapshots see later durations.
func (s *Session) Snapshot() *SessionInfo {
	return &SessionInfo{
		Clicks:             s.clicks.Load(),
		Keystrokes:         s.keystrokes.Load(),
		ScrollDepthPercent: int(s.scrollDepth.Load()),
		DurationMillis:     time.Since(s.start).Milliseconds(),
		ReturningVisitor:   s.returning,
	}
}
