package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/history"
	"github.com/p-blackswan/reel-scout/internal/mobile"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/selector"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Outcome classifies what a Step did.
type Outcome string

const (
	OutcomeIdle          Outcome = "idle"
	OutcomeDeviceStopped Outcome = "device_stopped"
	OutcomeAdSkipped     Outcome = "ad_skipped"
	OutcomeKept          Outcome = "kept"
	OutcomeDiscarded     Outcome = "discarded"
	OutcomeCaptureFailed Outcome = "capture_failed"
	OutcomeReobserved    Outcome = "reobserved"
	OutcomePromoted      Outcome = "promoted"
)

// StepResult reports one Step. Item is a copy of the stored item and is set
// only when the step left a pending candidate.
type StepResult struct {
	SessionID   string          `json:"session_id,omitempty"`
	Outcome     Outcome         `json:"outcome"`
	Item        *state.Item     `json:"item,omitempty"`
	Risk        risk.Assessment `json:"risk"`
	AutoStopped bool            `json:"auto_stopped"`
	StopReason  string          `json:"stop_reason,omitempty"`
	DeviceState string          `json:"device_status,omitempty"`
}

// Step advances the active session by one observation. It is a no-op when
// no session is active or the session is paused. Collaborator failures end
// the step early without touching persisted state; only a failed commit is
// returned as an error.
func (m *Manager) Step(ctx context.Context) (StepResult, error) {
	m.stepMu.Lock()
	defer m.stepMu.Unlock()

	started := m.now()
	res, err := m.step(ctx)
	if m.metrics != nil && res.Outcome != OutcomeIdle {
		m.metrics.RecordStep(string(res.Outcome), m.now().Sub(started).Seconds())
		if res.Risk.Level != "" && res.Outcome != OutcomeDeviceStopped {
			m.metrics.RecordRisk(string(res.Risk.Level))
		}
	}
	if err != nil && m.metrics != nil {
		m.metrics.RecordPersistError()
	}
	if err == nil && m.journal != nil && res.Outcome != OutcomeIdle {
		row := &history.Step{
			SessionID:     res.SessionID,
			Outcome:       string(res.Outcome),
			RiskLevel:     string(res.Risk.Level),
			Justification: res.Risk.Justification,
			CreatedAt:     m.now(),
		}
		if res.Item != nil {
			row.ItemID, row.Score, row.Label = res.Item.ID, res.Item.Score, string(res.Item.Label)
			row.Keep = res.Item.Status == state.StatusPending
		}
		if jerr := m.journal.RecordStep(ctx, row); jerr != nil {
			m.logger.Warn().Err(jerr).Msg("Failed to journal step")
		}
	}
	return res, err
}

func (m *Manager) step(ctx context.Context) (StepResult, error) {
	agg, err := m.store.Load()
	if err != nil {
		return StepResult{Outcome: OutcomeIdle}, err
	}
	if !agg.Running() || m.agent == nil {
		return StepResult{Outcome: OutcomeIdle}, nil
	}
	sid := agg.ActiveSessionID
	settings := agg.Settings
	res := StepResult{SessionID: sid}
	log := m.logger.With().Str("session_id", sid).Logger()

	status := m.deviceStatus(ctx)
	res.DeviceState = string(status)
	if status != mobile.DeviceReady {
		reason := state.StopDevicePfx + string(status)
		if err := m.agent.StopSession(ctx); err != nil {
			log.Warn().Err(err).Msg("Agent stop failed")
		}
		err := m.store.UpdateLocked(func(a *state.Aggregate) error {
			a.DeviceStatus, a.DeviceStatusAt = status, m.now()
			if a.ActiveSessionID == sid {
				clearSession(a, reason)
			}
			return nil
		})
		log.Warn().Str("device_status", string(status)).Msg("Device not ready, session stopped")
		res.Outcome = OutcomeDeviceStopped
		res.StopReason = reason
		res.AutoStopped = true
		res.Risk = risk.Assessment{Level: risk.LevelSafe, Justification: reason}
		return res, err
	}

	if err := m.agent.StartSession(ctx, sid); err != nil {
		log.Error().Err(err).Msg("Agent session unavailable")
		return StepResult{Outcome: OutcomeIdle}, nil
	}

	events := make([]mobile.Event, 0, 4)
	scroll, err := m.agent.Scroll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scroll failed")
		return StepResult{Outcome: OutcomeIdle}, nil
	}
	events = append(events, scroll)
	actions := []string{"scroll"}

	if m.probe != nil && m.probe.IsLikelyAdvertisement(ctx) {
		if skip, err := m.agent.Scroll(ctx); err == nil {
			events = append(events, skip)
		}
		log.Debug().Msg("Advertisement skipped")
		res.Outcome = OutcomeAdSkipped
		return m.commit(ctx, res, events, nil, log)
	}

	pauseSecs := m.scrollPause(settings)
	if ev, err := m.agent.Pause(ctx, pauseSecs); err == nil {
		events = append(events, ev)
		actions = append(actions, fmt.Sprintf("pause %.2fs", pauseSecs))
	} else {
		log.Warn().Err(err).Msg("Pause failed")
	}

	opened := false
	if d, ok := m.agent.(mobile.OpenDecider); ok && d.ShouldOpen() {
		if ev, err := m.agent.Open(ctx); err == nil {
			events = append(events, ev)
			opened = true
			watch := m.watchPause(settings)
			if ev, err := m.agent.Pause(ctx, watch); err == nil {
				events = append(events, ev)
			}
			actions = append(actions, "open", fmt.Sprintf("watch %.1fs", watch))
		}
	}

	features := Features(events)
	decision := selector.Decide(features, selector.ConfigFromSettings(settings))
	contentKey := contentKeyOf(events)

	var ref, text string
	if decision.Keep {
		if m.probe != nil {
			ref, _ = m.probe.CaptureExternalReference(ctx)
		}
		if ref == "" {
			log.Warn().Msg("Reference capture failed on a kept item")
			if m.metrics != nil {
				m.metrics.RecordCaptureFailure()
			}
		} else if tc, ok := m.probe.(mobile.TextCapturer); ok {
			text, _ = tc.CaptureText(ctx)
		}
	}

	obs := &observation{
		id:         ItemID(contentKey, ref),
		contentKey: contentKey,
		ref:        ref,
		text:       text,
		decision:   decision,
		events:     events,
		actions:    actions,
		opened:     opened,
	}
	return m.commit(ctx, res, events, obs, log)
}

type observation struct {
	id         string
	contentKey string
	ref        string
	text       string
	decision   selector.Decision
	events     []mobile.Event
	actions    []string
	opened     bool
}

func (o *observation) keepOK() bool { return o.decision.Keep && o.ref != "" }

// commit folds the step into the aggregate in one locked update.
func (m *Manager) commit(ctx context.Context, res StepResult, events []mobile.Event, obs *observation, log zerolog.Logger) (StepResult, error) {
	sid := res.SessionID
	autoStop := false

	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		now := m.now()
		a.DeviceStatus, a.DeviceStatusAt = mobile.DeviceReady, now

		sm, ok := a.SessionMetrics[sid]
		if !ok || sm == nil {
			sm = risk.NewSessionMetrics(sid, now)
			a.SessionMetrics[sid] = sm
		}
		for _, ev := range events {
			sm.ApplyEvent(ev)
		}

		if obs != nil {
			res.Outcome, res.Item = m.upsertItem(a, sid, obs, now)
		}

		assessment := m.estimator.Assess(sm, now)
		a.LastRisk = &assessment
		a.LastRiskLevel = assessment.Level
		res.Risk = assessment

		if assessment.Level == risk.LevelHighRisk && a.ActiveSessionID == sid {
			if a.Settings.Bool("risk_safety_enabled") {
				clearSession(a, state.StopHighRisk)
				autoStop = true
			} else {
				log.Warn().Str("justification", assessment.Justification).Msg("High risk with safety disabled, continuing")
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Step commit failed")
		return StepResult{SessionID: sid, Outcome: res.Outcome}, fmt.Errorf("committing step: %w", err)
	}

	if autoStop {
		res.AutoStopped = true
		res.StopReason = state.StopHighRisk
		if err := m.agent.StopSession(ctx); err != nil {
			log.Warn().Err(err).Msg("Agent stop failed")
		}
		log.Warn().Str("justification", res.Risk.Justification).Msg("Session auto-stopped on high risk")
	}
	if m.metrics != nil && res.Item != nil {
		m.metrics.RecordItem(string(res.Item.Status))
	}
	return res, nil
}

// upsertItem writes the observation. A known item gets fresh scores and
// sighting metadata; its status only moves from deleted to pending.
func (m *Manager) upsertItem(a *state.Aggregate, sid string, obs *observation, now time.Time) (Outcome, *state.Item) {
	d := obs.decision

	if it, ok := a.Items[obs.id]; ok {
		if it.Meta == nil {
			it.Meta = map[string]any{}
		}
		it.Meta["seen_count"] = metaInt(it.Meta["seen_count"]) + 1
		it.Meta["last_seen_at"] = now.Format(time.RFC3339)
		it.Meta["last_seen_session_id"] = sid
		applyDecision(it, d)
		if obs.ref != "" {
			it.ExternalRef = obs.ref
		}
		if obs.text != "" {
			appendOCRSample(it.Meta, obs.text)
		}
		it.UpdatedAt = now

		outcome := OutcomeReobserved
		if it.Status == state.StatusDeleted && obs.keepOK() {
			it.Status = state.StatusPending
			it.Notification = nil
			outcome = OutcomePromoted
		}
		if it.Status == state.StatusPending {
			cp := *it
			return outcome, &cp
		}
		return outcome, nil
	}

	status := state.StatusDeleted
	outcome := OutcomeDiscarded
	switch {
	case obs.keepOK():
		status, outcome = state.StatusPending, OutcomeKept
	case d.Keep:
		outcome = OutcomeCaptureFailed
	}

	kinds := make([]string, 0, len(obs.events))
	for _, ev := range obs.events {
		kinds = append(kinds, string(ev.Kind))
	}
	it := &state.Item{
		ID:          obs.id,
		Source:      m.source,
		ExternalRef: obs.ref,
		Status:      status,
		SessionID:   sid,
		ObservedAt:  now,
		UpdatedAt:   now,
		Meta: map[string]any{
			"events":               kinds,
			"device_actions":       obs.actions,
			"content_key":          obs.contentKey,
			"extracted_shortcode":  ShortcodeFromRef(obs.ref),
			"opened":               obs.opened,
			"seen_count":           1,
			"last_seen_at":         now.Format(time.RFC3339),
			"last_seen_session_id": sid,
		},
	}
	if obs.text != "" {
		appendOCRSample(it.Meta, obs.text)
	}
	applyDecision(it, d)
	a.Items[it.ID] = it

	if status != state.StatusPending {
		return outcome, nil
	}
	cp := *it
	return outcome, &cp
}

func applyDecision(it *state.Item, d selector.Decision) {
	it.Score = d.Score
	it.Threshold = d.Threshold
	it.ScoreDetails = d.Details
	it.Reason = d.Reason
	it.ScoreViral = d.ScoreViral
	it.ScoreLatent = d.ScoreLatent
	it.Label = d.Label
	it.Title = selector.Title(d.Score, d.Reason)
	it.Hashtags = selector.Hashtags(d.Details)
}

// MaxOCRSamples bounds the recognized-text samples kept per item; the
// oldest are dropped first.
const MaxOCRSamples = 8

func appendOCRSample(meta map[string]any, text string) {
	var samples []any
	switch v := meta[temporal.MetaOCRSamples].(type) {
	case []any:
		samples = v
	case []string:
		for _, s := range v {
			samples = append(samples, s)
		}
	}
	samples = append(samples, text)
	if len(samples) > MaxOCRSamples {
		samples = samples[len(samples)-MaxOCRSamples:]
	}
	meta[temporal.MetaOCRSamples] = samples
}

func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// scrollPause draws the pause after a scroll: uniform within the explicit
// min/max override when one is set, otherwise base ± jitter.
func (m *Manager) scrollPause(s state.Settings) float64 {
	base := s.Float("scroll_pause_seconds")
	loCfg := s.Float("scroll_pause_min_seconds")
	hiCfg := s.Float("scroll_pause_max_seconds")

	var lo, hi float64
	if loCfg > 0 || hiCfg > 0 {
		lo, hi = base, base
		if loCfg > 0 {
			lo = loCfg
		}
		if hiCfg > 0 {
			hi = hiCfg
		}
		lo, hi = math.Min(lo, hi), math.Max(lo, hi)
		lo, hi = math.Max(0.05, lo), math.Min(15, hi)
	} else {
		jitter := s.Float("scroll_pause_jitter_ratio")
		lo = math.Max(0.05, base*(1-jitter))
		hi = math.Min(15, base*(1+jitter))
	}
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*m.draw()
}

func (m *Manager) watchPause(s state.Settings) float64 {
	a, b := s.Float("open_watch_min_seconds"), s.Float("open_watch_max_seconds")
	lo, hi := math.Min(a, b), math.Max(a, b)
	return lo + (hi-lo)*m.draw()
}

func (m *Manager) draw() float64 {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.rng.Float64()
}
