package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newEstimator() *Estimator {
	return NewEstimator(DefaultMaxSession, zerolog.Nop())
}

func metricsAt(elapsed time.Duration, scrolls, opens int, pause float64) (*SessionMetrics, time.Time) {
	m := NewSessionMetrics("s", t0)
	m.ScrollCount = scrolls
	m.OpenCount = opens
	m.PauseSeconds = pause
	return m, t0.Add(elapsed)
}

func TestNewEstimator_FloorsMax(t *testing.T) {
	e := NewEstimator(5*time.Second, zerolog.Nop())
	assert.Equal(t, time.Minute, e.MaxSession())
}

func TestAssess_HardStopAtMax(t *testing.T) {
	m, now := metricsAt(15*time.Minute, 0, 0, 0)
	a := newEstimator().Assess(m, now)
	assert.Equal(t, LevelHighRisk, a.Level)
	assert.Zero(t, a.RemainingSeconds)
	assert.Equal(t, "max_session_time_reached", a.Justification)
}

func TestAssess_Rules(t *testing.T) {
	cases := []struct {
		name     string
		elapsed  time.Duration
		scrolls  int
		opens    int
		pause    float64
		want     Level
		contains string
	}{
		{"fatigue high", 13 * time.Minute, 910, 0, 0, LevelHighRisk, "fatigue="},
		{"extreme scroll", 2 * time.Minute, 190, 0, 120, LevelHighRisk, "scroll_rpm=95.0"},
		{"warmup suppresses scroll rate", 30 * time.Second, 60, 0, 60, LevelSafe, "elapsed_s=30"},
		{"compulsive", 6 * time.Minute, 480, 0, 0, LevelHighRisk, "pause_per_min=0.00"},
		{"open hopping", 6 * time.Minute, 60, 130, 3, LevelHighRisk, "open_rpm="},
		{"near limit", 13 * time.Minute, 10, 0, 200, LevelWarning, "remaining_s=120"},
		{"fatigue elevated", 10 * time.Minute, 590, 0, 12, LevelWarning, "fatigue=0.72"},
		{"scroll high", 2 * time.Minute, 130, 0, 60, LevelWarning, "scroll_rpm=65.0"},
		{"open high", 2 * time.Minute, 20, 26, 60, LevelWarning, "open_rpm=13.0"},
		{"low pause", 9 * time.Minute, 20, 0, 5, LevelWarning, "pause_per_min="},
		{"safe", 3 * time.Minute, 30, 2, 30, LevelSafe, "scroll_rpm=10.0"},
	}
	e := newEstimator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, now := metricsAt(tc.elapsed, tc.scrolls, tc.opens, tc.pause)
			a := e.Assess(m, now)
			assert.Equal(t, tc.want, a.Level)
			assert.Contains(t, a.Justification, tc.contains)
			assert.InDelta(t, (15*time.Minute - tc.elapsed).Seconds(), a.RemainingSeconds, 1e-6)
		})
	}
}

func TestAssess_Deterministic(t *testing.T) {
	m, now := metricsAt(7*time.Minute, 200, 10, 40)
	e := newEstimator()
	first := e.Assess(m, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Assess(m, now))
	}
	assert.Contains(t, []Level{LevelSafe, LevelWarning, LevelHighRisk}, first.Level)
}
