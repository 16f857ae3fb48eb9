// Package session runs the scouting state machine: stopped, running and
// paused sessions, and the Step that observes, scores and records one item.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/history"
	"github.com/p-blackswan/reel-scout/internal/metrics"
	"github.com/p-blackswan/reel-scout/internal/mobile"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Retractor removes a previously posted preview.
type Retractor interface {
	Retract(ctx context.Context, ref state.Notification) error
}

// Journal receives step and decision rows.
type Journal interface {
	RecordStep(ctx context.Context, st *history.Step) error
	RecordDecision(ctx context.Context, d *history.Decision) error
}

// Manager owns every session transition. All mutations go through the
// state store's UpdateLocked; slow collaborator calls happen outside it.
type Manager struct {
	store     *state.Store
	agent     mobile.MobileAgent
	probe     mobile.DeviceProbe
	estimator *risk.Estimator
	logger    zerolog.Logger

	metrics   *metrics.Metrics
	journal   Journal
	retractor Retractor
	source    string
	now       func() time.Time

	stepMu sync.Mutex
	rngMu  sync.Mutex
	rng    *rand.Rand
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics records step outcomes.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mg *Manager) { mg.metrics = m }
}

// WithJournal appends steps and decisions to a journal.
func WithJournal(j Journal) ManagerOption {
	return func(mg *Manager) { mg.journal = j }
}

// WithRetractor enables preview cleanup when an item is deleted.
func WithRetractor(r Retractor) ManagerOption {
	return func(mg *Manager) { mg.retractor = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(mg *Manager) { mg.now = now }
}

// WithSeed makes pause and watch draws reproducible.
func WithSeed(seed int64) ManagerOption {
	return func(mg *Manager) { mg.rng = rand.New(rand.NewSource(seed)) }
}

// WithSource sets the source recorded on new items.
func WithSource(source string) ManagerOption {
	return func(mg *Manager) { mg.source = source }
}

// NewManager creates a Manager. probe may be nil, in which case the device
// is always READY, nothing is an advertisement and capture always fails.
// agent may be nil for offline maintenance; Start then fails and Step
// does nothing.
func NewManager(store *state.Store, agent mobile.MobileAgent, probe mobile.DeviceProbe, estimator *risk.Estimator, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		agent:     agent,
		probe:     probe,
		estimator: estimator,
		logger:    logger.With().Str("component", "session").Logger(),
		source:    "instagram",
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewSessionID returns "sess_" followed by 10 hex characters.
func NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func (m *Manager) deviceStatus(ctx context.Context) mobile.DeviceStatus {
	if m.probe == nil {
		return mobile.DeviceReady
	}
	return m.probe.Status(ctx)
}

// Start probes the device and opens a new session.
func (m *Manager) Start(ctx context.Context) (string, error) {
	status := m.deviceStatus(ctx)
	now := m.now()

	if status != mobile.DeviceReady {
		_ = m.store.UpdateLocked(func(a *state.Aggregate) error {
			a.DeviceStatus, a.DeviceStatusAt = status, now
			return nil
		})
		return "", fmt.Errorf("%w: %s", serrors.ErrDeviceNotReady, status)
	}

	agg, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if agg.ActiveSessionID != "" {
		return agg.ActiveSessionID, fmt.Errorf("%w: %s", serrors.ErrSessionActive, agg.ActiveSessionID)
	}

	if m.agent == nil {
		return "", fmt.Errorf("%w: no mobile agent", serrors.ErrDeviceNotReady)
	}
	sid := NewSessionID()
	if err := m.agent.StartSession(ctx, sid); err != nil {
		return "", fmt.Errorf("starting agent session: %w", err)
	}

	err = m.store.UpdateLocked(func(a *state.Aggregate) error {
		if a.ActiveSessionID != "" {
			return fmt.Errorf("%w: %s", serrors.ErrSessionActive, a.ActiveSessionID)
		}
		a.ActiveSessionID = sid
		a.SessionPaused = false
		a.LastSessionStopReason = ""
		a.DeviceStatus, a.DeviceStatusAt = status, now
		a.SessionMetrics[sid] = risk.NewSessionMetrics(sid, now)
		a.LastRisk = nil
		a.LastRiskLevel = ""
		return nil
	})
	if err != nil {
		_ = m.agent.StopSession(ctx)
		return "", err
	}

	m.logger.Info().Str("session_id", sid).Msg("Session started")
	return sid, nil
}

// Stop ends the active session. An empty reason records a user stop.
func (m *Manager) Stop(ctx context.Context, reason string) error {
	if reason == "" {
		reason = state.StopByUser
	}
	var sid string
	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		if a.ActiveSessionID == "" {
			return serrors.ErrNoActiveSession
		}
		sid = a.ActiveSessionID
		clearSession(a, reason)
		return nil
	})
	if err != nil {
		return err
	}

	if m.agent != nil {
		if err := m.agent.StopSession(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Agent stop failed")
		}
	}
	m.logger.Info().Str("session_id", sid).Str("reason", reason).Msg("Session stopped")
	return nil
}

func clearSession(a *state.Aggregate, reason string) {
	a.ActiveSessionID = ""
	a.SessionPaused = false
	a.LastSessionStopReason = reason
}

// Pause suspends stepping without ending the session.
func (m *Manager) Pause(ctx context.Context) error {
	return m.setPaused(true)
}

// Resume continues a paused session.
func (m *Manager) Resume(ctx context.Context) error {
	return m.setPaused(false)
}

func (m *Manager) setPaused(paused bool) error {
	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		if a.ActiveSessionID == "" {
			return serrors.ErrNoActiveSession
		}
		a.SessionPaused = paused
		return nil
	})
	if err == nil {
		m.logger.Info().Bool("paused", paused).Msg("Session pause toggled")
	}
	return err
}

// SetStatus applies an operator decision to an item. Deleting an item
// retracts its preview on a best-effort basis.
func (m *Manager) SetStatus(ctx context.Context, itemID string, status state.Status, actor string) (*state.Item, error) {
	var (
		out     state.Item
		from    state.Status
		retract *state.Notification
	)
	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		it, err := a.Item(itemID)
		if err != nil {
			return err
		}
		from = it.Status
		it.Status = status
		it.UpdatedAt = m.now()
		if status == state.StatusDeleted && it.Notification != nil {
			n := *it.Notification
			retract = &n
		}
		out = *it
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().Str("item_id", itemID).Str("from", string(from)).Str("to", string(status)).Str("actor", actor).Msg("Item status changed")
	if m.metrics != nil {
		m.metrics.RecordItem(string(status))
	}
	if m.journal != nil {
		if err := m.journal.RecordDecision(ctx, &history.Decision{
			ItemID: itemID, FromStatus: string(from), ToStatus: string(status), Actor: actor, CreatedAt: m.now(),
		}); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to journal decision")
		}
	}

	if retract != nil && m.retractor != nil {
		if err := m.retractor.Retract(ctx, *retract); err != nil {
			m.logger.Warn().Err(err).Str("item_id", itemID).Msg("Preview cleanup failed")
		} else {
			_ = m.store.UpdateLocked(func(a *state.Aggregate) error {
				if it, ok := a.Items[itemID]; ok && it.Status == state.StatusDeleted {
					it.Notification = nil
				}
				return nil
			})
			out.Notification = nil
		}
	}
	return &out, nil
}

// maxSampleBytes caps one attached text sample.
const maxSampleBytes = 16 << 10

// AttachSample records recognized text, a known publish age, or both, on an
// item so later analyses can vote across samples.
func (m *Manager) AttachSample(ctx context.Context, itemID, text string, ageSeconds *int64) (*state.Item, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "" && ageSeconds == nil:
		return nil, fmt.Errorf("%w: text or age_seconds required", serrors.ErrInvalidSample)
	case len(text) > maxSampleBytes:
		return nil, fmt.Errorf("%w: text exceeds %d bytes", serrors.ErrInvalidSample, maxSampleBytes)
	case ageSeconds != nil && *ageSeconds < 0:
		return nil, fmt.Errorf("%w: negative age_seconds", serrors.ErrInvalidSample)
	}

	var out state.Item
	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		it, err := a.Item(itemID)
		if err != nil {
			return err
		}
		if it.Meta == nil {
			it.Meta = map[string]any{}
		}
		if text != "" {
			appendOCRSample(it.Meta, text)
		}
		if ageSeconds != nil {
			it.Meta[temporal.MetaAgeSeconds] = *ageSeconds
		}
		it.UpdatedAt = m.now()
		out = *it
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("item_id", itemID).Bool("text", text != "").Bool("age", ageSeconds != nil).Msg("Text sample attached")
	return &out, nil
}

// SetSetting validates and stores one tunable.
func (m *Manager) SetSetting(ctx context.Context, key, value string) (any, error) {
	var stored any
	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		v, err := a.Settings.Set(key, value)
		stored = v
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("key", key).Interface("value", stored).Msg("Setting updated")
	return stored, nil
}

// AdjustSetting moves a numeric tunable by delta within its range.
func (m *Manager) AdjustSetting(ctx context.Context, key string, delta float64) (float64, error) {
	var v float64
	err := m.store.UpdateLocked(func(a *state.Aggregate) error {
		var err error
		v, err = a.Settings.ApplyDelta(key, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	m.logger.Info().Str("key", key).Float64("delta", delta).Float64("value", v).Msg("Setting adjusted")
	return v, nil
}

// Snapshot returns the current aggregate.
func (m *Manager) Snapshot(ctx context.Context) (*state.Aggregate, error) {
	return m.store.Load()
}
