// Package notify delivers operator alerts and item previews. Telegram is the
// primary channel; Slack and a log sink are available for other setups.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Level describes the urgency of an alert.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is a message for the operator.
type Alert struct {
	Level   Level
	Title   string
	Message string
	Source  string // subsystem that raised it
	Err     error
}

// Text renders the alert as plain text.
func (a Alert) Text() string {
	text := fmt.Sprintf("%s %s", levelEmoji(a.Level), a.Title)
	if a.Message != "" {
		text += "\n" + a.Message
	}
	if a.Err != nil {
		text += fmt.Sprintf("\n(%v)", a.Err)
	}
	return text
}

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Publisher posts an item preview and returns a handle to it.
type Publisher interface {
	Publish(ctx context.Context, it *state.Item, analysis *temporal.Analysis) (state.Notification, error)
}

// Retractor removes a preview posted earlier.
type Retractor interface {
	Retract(ctx context.Context, ref state.Notification) error
}

// Multi fans alerts out to several notifiers.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(ns ...Notifier) *Multi {
	return &Multi{notifiers: ns}
}

func (m *Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Router dispatches retractions to the channel that posted the preview.
// Unknown channels are ignored.
type Router map[string]Retractor

func (r Router) Retract(ctx context.Context, ref state.Notification) error {
	if rt, ok := r[ref.Channel]; ok {
		return rt.Retract(ctx, ref)
	}
	return nil
}

// Log writes alerts and previews to the log. Useful without any chat
// credentials.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Notify(_ context.Context, a Alert) error {
	l.logger.Warn().
		Str("level", string(a.Level)).
		Str("title", a.Title).
		Str("message", a.Message).
		Str("source", a.Source).
		AnErr("cause", a.Err).
		Msg("alert")
	return nil
}

func (l *Log) Publish(_ context.Context, it *state.Item, analysis *temporal.Analysis) (state.Notification, error) {
	ref := state.Notification{Channel: ChannelLog, MessageID: uuid.NewString()}
	l.logger.Info().Str("item_id", it.ID).Str("message_id", ref.MessageID).Msg(Caption(it, analysis))
	return ref, nil
}

func (l *Log) Retract(_ context.Context, ref state.Notification) error {
	l.logger.Info().Str("message_id", ref.MessageID).Msg("preview retracted")
	return nil
}

// Channel names recorded on state.Notification.
const (
	ChannelTelegram = "telegram"
	ChannelSlack    = "slack"
	ChannelLog      = "log"
)

func levelEmoji(l Level) string {
	switch l {
	case LevelCritical:
		return "🚨"
	case LevelWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
