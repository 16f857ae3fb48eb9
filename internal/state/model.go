// Package state holds the persisted aggregate shared by the session engine,
// the command surfaces and the scheduler, and the store that owns it.
package state

import (
	"fmt"
	"sort"
	"time"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/mobile"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/selector"
)

// CurrentVersion is the document version written by Save.
const CurrentVersion = 1

// Status is an item's review status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusDeleted  Status = "deleted"
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusDeleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", serrors.ErrInvalidStatus, s)
}

// Stop reasons recorded in LastSessionStopReason.
const (
	StopByUser    = "stopped_by_user"
	StopHighRisk  = "high_risk"
	StopDevicePfx = "device_"
	StopTargetPfx = "target_sent_reached:"
)

// Notification tracks the preview message posted for an item.
type Notification struct {
	Channel   string `json:"channel"`
	ChatID    int64  `json:"chat_id,omitempty"`
	Target    string `json:"target,omitempty"`
	MessageID string `json:"message_id"`
}

// Item is one observed piece of content.
type Item struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	ExternalRef  string            `json:"external_ref"`
	Status       Status            `json:"status"`
	Score        float64           `json:"score"`
	Threshold    float64           `json:"threshold"`
	ScoreDetails selector.Features `json:"score_details"`
	Reason       string            `json:"reason"`
	ScoreViral   float64           `json:"score_viral"`
	ScoreLatent  float64           `json:"score_latent"`
	Label        selector.Label    `json:"label"`
	Title        string            `json:"title"`
	Hashtags     []string          `json:"hashtags"`
	SessionID    string            `json:"session_id"`
	ObservedAt   time.Time         `json:"observed_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Notification *Notification     `json:"notification,omitempty"`
	Meta         map[string]any    `json:"meta,omitempty"`
}

// Aggregate is the whole persisted document.
type Aggregate struct {
	Version               int                             `json:"version"`
	ActiveSessionID       string                          `json:"active_session_id,omitempty"`
	SessionPaused         bool                            `json:"session_paused"`
	LastSessionStopReason string                          `json:"last_session_stop_reason,omitempty"`
	ControlChatID         int64                           `json:"control_chat_id,omitempty"`
	Settings              Settings                        `json:"settings"`
	SessionMetrics        map[string]*risk.SessionMetrics `json:"session_metrics"`
	Items                 map[string]*Item                `json:"items"`
	LastRisk              *risk.Assessment                `json:"last_risk,omitempty"`
	LastRiskLevel         risk.Level                      `json:"last_risk_level,omitempty"`
	LastRiskAlertAt       time.Time                       `json:"last_risk_alert_at"`
	DeviceStatus          mobile.DeviceStatus             `json:"device_status,omitempty"`
	DeviceStatusAt        time.Time                       `json:"device_status_at"`
	LastDeviceAlertAt     time.Time                       `json:"last_device_alert_at"`
	LastUpdateID          int64                           `json:"last_update_id"`
}

// New returns an empty aggregate with default settings.
func New() *Aggregate {
	return &Aggregate{
		Version:        CurrentVersion,
		Settings:       Defaults(),
		SessionMetrics: make(map[string]*risk.SessionMetrics),
		Items:          make(map[string]*Item),
	}
}

func (a *Aggregate) normalize() {
	if a.Version == 0 {
		a.Version = CurrentVersion
	}
	if a.Settings == nil {
		a.Settings = Settings{}
	}
	EnsureDefaults(a.Settings)
	if a.SessionMetrics == nil {
		a.SessionMetrics = make(map[string]*risk.SessionMetrics)
	}
	if a.Items == nil {
		a.Items = make(map[string]*Item)
	}
	for id, it := range a.Items {
		if it == nil {
			delete(a.Items, id)
			continue
		}
		if it.ID == "" {
			it.ID = id
		}
		if it.Status == "" {
			it.Status = StatusPending
		}
	}
}

// Running reports whether a session is active and not paused.
func (a *Aggregate) Running() bool {
	return a.ActiveSessionID != "" && !a.SessionPaused
}

// Item looks up an item by id.
func (a *Aggregate) Item(id string) (*Item, error) {
	it, ok := a.Items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", serrors.ErrItemNotFound, id)
	}
	return it, nil
}

// SortedItems returns items filtered by status (all when empty), newest
// first.
func (a *Aggregate) SortedItems(status Status) []*Item {
	out := make([]*Item, 0, len(a.Items))
	for _, it := range a.Items {
		if status == "" || it.Status == status {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	return out
}

// SentCount counts this session's non-deleted items whose preview went to
// chatID.
func (a *Aggregate) SentCount(sessionID string, chatID int64) int {
	n := 0
	for _, it := range a.Items {
		if it.SessionID != sessionID || it.Status == StatusDeleted || it.Notification == nil {
			continue
		}
		if chatID != 0 && it.Notification.ChatID != chatID {
			continue
		}
		n++
	}
	return n
}
