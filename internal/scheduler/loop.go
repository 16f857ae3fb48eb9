// Package scheduler drives the session in the background. Each tick it
// steps the active session, dispatches at most one pending preview and
// sends throttled risk and device alerts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/metrics"
	"github.com/p-blackswan/reel-scout/internal/notify"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/session"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Sessions is the session surface the loop drives.
type Sessions interface {
	Step(ctx context.Context) (session.StepResult, error)
	Stop(ctx context.Context, reason string) error
}

// Analyzer produces the temporal block attached to previews.
type Analyzer interface {
	Analyze(ctx context.Context, it *state.Item, settings state.Settings) temporal.Analysis
}

// Config configures the loop.
type Config struct {
	// Interval is the sleep used when the settings cannot be read.
	Interval time.Duration

	// AlertCooldown spaces repeated risk and device alerts.
	AlertCooldown time.Duration
}

// DefaultConfig returns the stock pacing.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, AlertCooldown: 60 * time.Second}
}

const (
	minSleep = 200 * time.Millisecond
	maxSleep = 30 * time.Second
)

// Loop is the background step loop.
type Loop struct {
	cfg       Config
	store     *state.Store
	sessions  Sessions
	publisher notify.Publisher
	notifier  notify.Notifier
	analyzer  Analyzer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	ticks   int
}

// Option configures Loop.
type Option func(*Loop)

func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// New creates a Loop.
func New(cfg Config, store *state.Store, sessions Sessions, publisher notify.Publisher, notifier notify.Notifier, analyzer Analyzer, logger zerolog.Logger, opts ...Option) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	l := &Loop{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		publisher: publisher,
		notifier:  notifier,
		analyzer:  analyzer,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("scheduler: loop already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		l.logger.Info().Msg("Step loop stopped")
	}()
	l.logger.Info().Dur("alert_cooldown", l.cfg.AlertCooldown).Msg("Step loop starting")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			timer.Reset(l.Tick(ctx))
		}
	}
}

// IsRunning reports whether Run is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// TickCount returns the number of completed ticks.
func (l *Loop) TickCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Tick runs one cycle and returns how long to sleep before the next. A
// panic inside the cycle is logged and swallowed.
func (l *Loop) Tick(ctx context.Context) (sleep time.Duration) {
	sleep = l.cfg.Interval
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Tick panicked")
		}
		l.mu.Lock()
		l.ticks++
		l.mu.Unlock()
	}()

	before, err := l.store.Load()
	if err != nil {
		l.logger.Error().Err(err).Msg("State unreadable")
		return sleep
	}
	sleep = sleepFor(before.Settings)
	if !before.Running() {
		return sleep
	}

	res, err := l.sessions.Step(ctx)
	if err != nil {
		// Persistence failures are retried by the next tick.
		l.logger.Error().Err(err).Msg("Step failed")
		return sleep
	}

	l.dispatchPreview(ctx)
	l.deviceAlert(ctx, res)
	l.riskAlert(ctx, before.LastRiskLevel, res)
	return sleep
}

func sleepFor(s state.Settings) time.Duration {
	secs := s.Float("loop_sleep_seconds")
	d := time.Duration(secs * float64(time.Second))
	return min(maxSleep, max(minSleep, d))
}

// dispatchPreview publishes the newest pending item that has no preview
// yet, then enforces the per-session sent target.
func (l *Loop) dispatchPreview(ctx context.Context) {
	if l.publisher == nil {
		return
	}
	agg, err := l.store.Load()
	if err != nil {
		return
	}
	var cand *state.Item
	for _, it := range agg.SortedItems(state.StatusPending) {
		if it.Notification == nil {
			cand = it
			break
		}
	}
	if cand == nil {
		return
	}

	var analysis *temporal.Analysis
	if l.analyzer != nil {
		a := l.analyzer.Analyze(ctx, cand, agg.Settings)
		analysis = &a
	}
	ref, err := l.publisher.Publish(ctx, cand, analysis)
	if err != nil {
		l.logger.Error().Err(err).Str("item_id", cand.ID).Msg("Preview send failed")
		return
	}

	var (
		sid     string
		sent    int
		target  int
		applied bool
	)
	err = l.store.UpdateLocked(func(a *state.Aggregate) error {
		it, ok := a.Items[cand.ID]
		if !ok || it.Notification != nil {
			return nil
		}
		it.Notification = &ref
		applied = true
		sid = a.ActiveSessionID
		target = a.Settings.Int("target_sent_per_session")
		if sid != "" {
			sent = a.SentCount(sid, a.ControlChatID)
		}
		return nil
	})
	if err != nil {
		l.logger.Error().Err(err).Str("item_id", cand.ID).Msg("Failed to record preview")
		if l.metrics != nil {
			l.metrics.RecordPersistError()
		}
		return
	}
	if !applied {
		return
	}
	l.logger.Info().Str("item_id", cand.ID).Str("channel", ref.Channel).Str("message_id", ref.MessageID).Msg("Preview sent")

	if sid == "" || target <= 0 || sent < target {
		return
	}
	reason := fmt.Sprintf("%s%d", state.StopTargetPfx, sent)
	if err := l.sessions.Stop(ctx, reason); err != nil {
		l.logger.Warn().Err(err).Msg("Target stop failed")
		return
	}
	l.notify(ctx, notify.Alert{
		Level:  notify.LevelInfo,
		Title:  fmt.Sprintf("✅ Target reached: %d/%d previews sent. Session stopped.", sent, target),
		Source: "scheduler",
	})
}

func (l *Loop) deviceAlert(ctx context.Context, res session.StepResult) {
	if res.Outcome != session.OutcomeDeviceStopped {
		return
	}
	if !l.claimAlert(func(a *state.Aggregate) *time.Time { return &a.LastDeviceAlertAt }, false) {
		return
	}
	l.notify(ctx, notify.Alert{
		Level:   notify.LevelCritical,
		Title:   fmt.Sprintf("📵 Device %s, session stopped", res.DeviceState),
		Message: res.StopReason,
		Source:  "device",
	})
}

func (l *Loop) riskAlert(ctx context.Context, prev risk.Level, res session.StepResult) {
	r := res.Risk
	if res.Outcome == session.OutcomeDeviceStopped {
		return
	}

	if r.Level == risk.LevelWarning || r.Level == risk.LevelHighRisk {
		changed := prev != r.Level
		if l.claimAlert(func(a *state.Aggregate) *time.Time { return &a.LastRiskAlertAt }, changed) {
			hint := ""
			if !l.safetyOn() {
				hint = " | safety=OFF"
			}
			l.notify(ctx, notify.Alert{
				Level:  notify.LevelWarning,
				Title:  fmt.Sprintf("Risk=%s | %s | remaining=%ds%s", r.Level, r.Justification, int(math.Round(r.RemainingSeconds)), hint),
				Source: "risk",
			})
		}
	}

	if res.AutoStopped && res.StopReason == state.StopHighRisk {
		l.notify(ctx, notify.Alert{
			Level:  notify.LevelCritical,
			Title:  "🛑 Session auto-stopped (HIGH_RISK)",
			Source: "risk",
		})
	}
}

func (l *Loop) safetyOn() bool {
	agg, err := l.store.Load()
	if err != nil {
		return true
	}
	return agg.Settings.Bool("risk_safety_enabled")
}

// claimAlert reserves an alert slot: it succeeds when force is set or the
// cooldown since the stamp returned by field has elapsed, and records now.
func (l *Loop) claimAlert(field func(*state.Aggregate) *time.Time, force bool) bool {
	now := l.now()
	claimed := false
	err := l.store.UpdateLocked(func(a *state.Aggregate) error {
		last := field(a)
		if !force && !last.IsZero() && now.Sub(*last) < l.cfg.AlertCooldown {
			return errThrottled
		}
		*last = now
		claimed = true
		return nil
	})
	if err != nil && !errors.Is(err, errThrottled) {
		l.logger.Error().Err(err).Msg("Failed to record alert time")
	}
	return claimed
}

var errThrottled = errors.New("alert throttled")

func (l *Loop) notify(ctx context.Context, a notify.Alert) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, a); err != nil {
		l.logger.Warn().Err(err).Str("title", a.Title).Msg("Alert delivery failed")
	}
}
