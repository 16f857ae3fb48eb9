package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Level is the outcome of an assessment.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelWarning  Level = "WARNING"
	LevelHighRisk Level = "HIGH_RISK"
)

const (
	minMaxSession     = 60 * time.Second
	DefaultMaxSession = 15 * time.Minute
	warmupSeconds     = 60.0
)

// Assessment is a point-in-time risk verdict.
type Assessment struct {
	Level            Level   `json:"level"`
	Justification    string  `json:"justification"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// Estimator evaluates SessionMetrics against fixed thresholds.
type Estimator struct {
	max    time.Duration
	logger zerolog.Logger
}

// NewEstimator creates an Estimator. maxSession is floored at one minute.
func NewEstimator(maxSession time.Duration, logger zerolog.Logger) *Estimator {
	if maxSession < minMaxSession {
		maxSession = minMaxSession
	}
	return &Estimator{
		max:    maxSession,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

// MaxSession returns the hard session limit.
func (e *Estimator) MaxSession() time.Duration { return e.max }

// Assess evaluates the rules in order; the first match wins. During the
// first minute rate-based rules are skipped because the denominators are
// too small to mean anything.
func (e *Estimator) Assess(m *SessionMetrics, now time.Time) Assessment {
	maxS := e.max.Seconds()
	elapsed := m.ElapsedSeconds(now)
	remaining := math.Max(0, maxS-elapsed)
	fatigue := m.FatigueScore(now)
	scrollRPM := m.ScrollRatePerMinute(now)
	openRPM := m.OpenRatePerMinute(now)
	pausePM := m.PausePerMinute(now)
	warm := elapsed >= warmupSeconds

	switch {
	case elapsed >= maxS:
		e.audit("max_session_reached", fmt.Sprintf("elapsed_s=%.1f", elapsed), fmt.Sprintf(">=%.1f", maxS))
		return Assessment{Level: LevelHighRisk, Justification: "max_session_time_reached", RemainingSeconds: 0}

	case fatigue >= 0.90:
		e.audit("fatigue_too_high", fmt.Sprintf("fatigue=%.2f", fatigue), ">=0.90")
		return Assessment{LevelHighRisk, fmt.Sprintf("fatigue=%.2f", fatigue), remaining}

	case warm && scrollRPM >= 90:
		e.audit("scroll_rate_extreme", fmt.Sprintf("scroll_rpm=%.1f", scrollRPM), ">=90.0")
		return Assessment{LevelHighRisk, fmt.Sprintf("scroll_rpm=%.1f, fatigue=%.2f", scrollRPM, fatigue), remaining}

	case warm && elapsed >= 300 && scrollRPM >= 75 && pausePM <= 0.5:
		e.audit("high_scroll_low_pause",
			fmt.Sprintf("scroll_rpm=%.1f; pause_per_min=%.2f", scrollRPM, pausePM),
			"scroll_rpm>=75.0 and pause_per_min<=0.50 (after 5min)")
		return Assessment{LevelHighRisk, fmt.Sprintf("scroll_rpm=%.1f, pause_per_min=%.2f", scrollRPM, pausePM), remaining}

	case warm && elapsed >= 300 && openRPM >= 20 && pausePM <= 0.8:
		e.audit("open_rate_extreme_low_pause",
			fmt.Sprintf("open_rpm=%.1f; pause_per_min=%.2f", openRPM, pausePM),
			"open_rpm>=20.0 and pause_per_min<=0.80 (after 5min)")
		return Assessment{LevelHighRisk, fmt.Sprintf("open_rpm=%.1f, pause_per_min=%.2f", openRPM, pausePM), remaining}

	case remaining <= 180:
		e.audit("near_time_limit", fmt.Sprintf("remaining_s=%.1f", remaining), "<=180.0")
		return Assessment{LevelWarning, fmt.Sprintf("remaining_s=%.0f", remaining), remaining}

	case fatigue >= 0.70:
		e.audit("fatigue_elevated", fmt.Sprintf("fatigue=%.2f", fatigue), ">=0.70")
		return Assessment{LevelWarning, fmt.Sprintf("fatigue=%.2f", fatigue), remaining}

	case warm && scrollRPM >= 60:
		e.audit("scroll_rate_high", fmt.Sprintf("scroll_rpm=%.1f", scrollRPM), ">=60.0")
		return Assessment{LevelWarning, fmt.Sprintf("scroll_rpm=%.1f", scrollRPM), remaining}

	case warm && openRPM >= 12:
		e.audit("open_rate_high", fmt.Sprintf("open_rpm=%.1f", openRPM), ">=12.0")
		return Assessment{LevelWarning, fmt.Sprintf("open_rpm=%.1f", openRPM), remaining}

	case warm && elapsed >= 480 && pausePM <= 0.8:
		e.audit("pause_rate_low", fmt.Sprintf("pause_per_min=%.2f", pausePM), "<=0.80 (after 8min)")
		return Assessment{LevelWarning, fmt.Sprintf("pause_per_min=%.2f", pausePM), remaining}
	}

	openPerScroll := float64(m.OpenCount) / math.Max(1, float64(m.ScrollCount))
	e.audit("within_limits",
		fmt.Sprintf("elapsed_s=%.0f; scroll_rpm=%.1f; open_rpm=%.1f; pause_per_min=%.2f; open_per_scroll=%.2f; fatigue=%.2f",
			elapsed, scrollRPM, openRPM, pausePM, openPerScroll, fatigue),
		fmt.Sprintf("max_s=%.0f; warn_remaining<=180; warn_fatigue>=0.70; warn_scroll_rpm>=60; warn_open_rpm>=12; high_fatigue>=0.90; high_scroll_rpm>=90", maxS))
	return Assessment{
		Level: LevelSafe,
		Justification: fmt.Sprintf("elapsed_s=%.0f, scroll_rpm=%.1f, open_rpm=%.1f, pause_per_min=%.2f, fatigue=%.2f",
			elapsed, scrollRPM, openRPM, pausePM, fatigue),
		RemainingSeconds: remaining,
	}
}

func (e *Estimator) audit(reason, metric, threshold string) {
	e.logger.Info().
		Str("reason", reason).
		Str("metric", metric).
		Str("threshold", threshold).
		Msg("risk assessed")
}
