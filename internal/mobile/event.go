// Package mobile defines the events produced by a device driver and the
// collaborator interfaces the session engine drives.
package mobile

import (
	"context"
	"time"
)

// Kind is the discriminator of an Event.
type Kind string

const (
	KindScroll Kind = "scroll"
	KindPause  Kind = "pause"
	KindOpen   Kind = "open"
)

// MetaContentKey is the only metadata key the engine reads: an opaque
// fingerprint of the content visible after the event.
const MetaContentKey = "content_key"

// Event is one scroll, pause or open action. Seconds is set for pauses,
// Target for opens, Delta for scrolls.
type Event struct {
	Kind      Kind              `json:"type"`
	At        time.Time         `json:"ts"`
	SessionID string            `json:"session_id"`
	Meta      map[string]string `json:"meta,omitempty"`

	Delta   int     `json:"delta,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
	Target  string  `json:"target,omitempty"`
}

// ContentKey returns the content fingerprint carried by the event, if any.
func (e Event) ContentKey() string {
	if e.Meta == nil {
		return ""
	}
	return e.Meta[MetaContentKey]
}

// NewScroll builds a scroll event.
func NewScroll(sessionID string, at time.Time, contentKey string) Event {
	return Event{Kind: KindScroll, At: at, SessionID: sessionID, Delta: 1, Meta: contentMeta(contentKey)}
}

// NewPause builds a pause event. Negative durations are coerced to zero.
func NewPause(sessionID string, at time.Time, seconds float64) Event {
	if seconds < 0 {
		seconds = 0
	}
	return Event{Kind: KindPause, At: at, SessionID: sessionID, Seconds: seconds}
}

// NewOpen builds an open event.
func NewOpen(sessionID string, at time.Time, contentKey, target string) Event {
	return Event{Kind: KindOpen, At: at, SessionID: sessionID, Target: target, Meta: contentMeta(contentKey)}
}

func contentMeta(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{MetaContentKey: key}
}

// DeviceStatus is the readiness reported by a DeviceProbe.
type DeviceStatus string

const (
	DeviceReady        DeviceStatus = "READY"
	DeviceDisconnected DeviceStatus = "DISCONNECTED"
	DeviceLocked       DeviceStatus = "LOCKED"
)

// MobileAgent produces feed navigation events.
type MobileAgent interface {
	StartSession(ctx context.Context, sessionID string) error
	StopSession(ctx context.Context) error
	Scroll(ctx context.Context) (Event, error)
	Pause(ctx context.Context, seconds float64) (Event, error)
	Open(ctx context.Context) (Event, error)
}

// OpenDecider is implemented by agents that want to drive the open decision
// themselves. Agents without it never open.
type OpenDecider interface {
	ShouldOpen() bool
}

// DeviceProbe answers best-effort questions about the device. None of the
// methods fail: an unknown answer is a valid outcome.
type DeviceProbe interface {
	Status(ctx context.Context) DeviceStatus
	IsLikelyAdvertisement(ctx context.Context) bool
	CaptureExternalReference(ctx context.Context) (string, bool)
}

// TextCapturer is implemented by probes that can read the text on screen
// for the current item: the icon column counters and the publish age line.
type TextCapturer interface {
	CaptureText(ctx context.Context) (string, bool)
}
