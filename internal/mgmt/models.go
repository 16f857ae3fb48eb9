// Package mgmt provides the management REST API of the scouting engine.
package mgmt

import (
	"time"

	"github.com/p-blackswan/reel-scout/internal/history"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// --- Session ---

// SessionResponse is returned by the session control endpoints.
type SessionResponse struct {
	SessionID  string `json:"session_id,omitempty"`
	Running    bool   `json:"running"`
	Paused     bool   `json:"paused"`
	StopReason string `json:"last_stop_reason,omitempty"`
}

// StopRequest is the optional body of POST /api/v1/session/stop.
type StopRequest struct {
	Reason string `json:"reason"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Session      SessionResponse      `json:"session"`
	Metrics      *risk.SessionMetrics `json:"metrics,omitempty"`
	LastRisk     *risk.Assessment     `json:"last_risk,omitempty"`
	DeviceStatus string               `json:"device_status,omitempty"`
	Counts       map[string]int       `json:"counts"`
	Settings     state.Settings       `json:"settings"`
	Text         string               `json:"text"`
}

// --- Items ---

// ListItemsQuery holds query parameters for GET /api/v1/items.
type ListItemsQuery struct {
	Status string `query:"status"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

// ItemListResponse is a page of items.
type ItemListResponse struct {
	Items  []*state.Item `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// StatusChangeRequest is the body of POST /api/v1/items/:id/status.
type StatusChangeRequest struct {
	Status string `json:"status"`
}

// SampleRequest is the body of POST /api/v1/items/:id/samples. At least one
// field is required.
type SampleRequest struct {
	Text       string `json:"text"`
	AgeSeconds *int64 `json:"age_seconds,omitempty"`
}

// AnalysisResponse carries the temporal analysis of one item.
type AnalysisResponse struct {
	ItemID   string            `json:"item_id"`
	Analysis temporal.Analysis `json:"analysis"`
	Block    string            `json:"block"`
}

// DecisionsResponse lists the journaled status changes of one item.
type DecisionsResponse struct {
	ItemID    string             `json:"item_id"`
	Decisions []history.Decision `json:"decisions"`
}

// --- Settings ---

// SettingsResponse is the body of the settings endpoints.
type SettingsResponse struct {
	Settings state.Settings `json:"settings"`
	Applied  map[string]any `json:"applied,omitempty"`
}

// --- History ---

// StepsResponse lists recent journaled steps.
type StepsResponse struct {
	SessionID string         `json:"session_id,omitempty"`
	Steps     []history.Step `json:"steps"`
}

// --- Health ---

// HealthDetailResponse is returned by GET /api/v1/health.
type HealthDetailResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Uptime string            `json:"uptime"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func since(t time.Time) string {
	return time.Since(t).Round(time.Second).String()
}
