// Package risk tracks per-session activity counters and maps them to a
// safety level that governs whether a session may keep running.
package risk

import (
	"math"
	"time"

	"github.com/p-blackswan/reel-scout/internal/mobile"
)

// SessionMetrics holds the counters of one session. Counters only grow.
type SessionMetrics struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	LastEventAt  time.Time `json:"last_event_at"`
	ScrollCount  int       `json:"scroll_count"`
	OpenCount    int       `json:"open_count"`
	PauseSeconds float64   `json:"pause_seconds"`
}

// NewSessionMetrics starts counters for a session at the given time.
func NewSessionMetrics(sessionID string, startedAt time.Time) *SessionMetrics {
	return &SessionMetrics{SessionID: sessionID, StartedAt: startedAt, LastEventAt: startedAt}
}

// ApplyEvent folds one event into the counters.
func (m *SessionMetrics) ApplyEvent(ev mobile.Event) {
	if ev.At.After(m.LastEventAt) {
		m.LastEventAt = ev.At
	}
	switch ev.Kind {
	case mobile.KindScroll:
		m.ScrollCount++
	case mobile.KindOpen:
		m.OpenCount++
	case mobile.KindPause:
		if ev.Seconds > 0 && !math.IsNaN(ev.Seconds) && !math.IsInf(ev.Seconds, 0) {
			m.PauseSeconds += ev.Seconds
		}
	}
}

// ElapsedSeconds is the session age at now, never negative.
func (m *SessionMetrics) ElapsedSeconds(now time.Time) float64 {
	return math.Max(0, now.Sub(m.StartedAt).Seconds())
}

// ScrollRatePerMinute returns scrolls per minute, 0 when no time has passed.
func (m *SessionMetrics) ScrollRatePerMinute(now time.Time) float64 {
	return perMinute(float64(m.ScrollCount), m.ElapsedSeconds(now))
}

// OpenRatePerMinute returns opens per minute, 0 when no time has passed.
func (m *SessionMetrics) OpenRatePerMinute(now time.Time) float64 {
	return perMinute(float64(m.OpenCount), m.ElapsedSeconds(now))
}

// PausePerMinute returns paused seconds per elapsed minute.
func (m *SessionMetrics) PausePerMinute(now time.Time) float64 {
	return perMinute(m.PauseSeconds, m.ElapsedSeconds(now))
}

// FatigueScore grows with session length (saturating at 20 minutes) and
// scroll rate (saturating at 60/min) and is relieved by up to 0.3 of pauses.
func (m *SessionMetrics) FatigueScore(now time.Time) float64 {
	t := math.Min(1, m.ElapsedSeconds(now)/1200)
	r := math.Min(1, m.ScrollRatePerMinute(now)/60)
	relief := math.Min(0.3, math.Max(0, m.PauseSeconds)/120)
	return clamp01(0.55*t + 0.55*r - relief)
}

func perMinute(count, elapsed float64) float64 {
	if elapsed <= 0 {
		return 0
	}
	return count / (elapsed / 60)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
