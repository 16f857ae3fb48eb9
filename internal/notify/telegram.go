package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/metrics"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/telegram"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Telegram sends alerts and previews to the control chat.
type Telegram struct {
	api     *telegram.Client
	chatID  atomic.Int64
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// TelegramOption configures Telegram.
type TelegramOption func(*Telegram)

func TelegramWithMetrics(m *metrics.Metrics) TelegramOption {
	return func(t *Telegram) { t.metrics = m }
}

// NewTelegram creates a notifier for chatID. A zero chat id holds all
// messages until SetChatID is called.
func NewTelegram(api *telegram.Client, chatID int64, logger zerolog.Logger, opts ...TelegramOption) *Telegram {
	t := &Telegram{api: api, logger: logger.With().Str("component", "notify").Str("channel", ChannelTelegram).Logger()}
	t.chatID.Store(chatID)
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetChatID switches the control chat, typically to the last chat an
// allowed operator wrote from.
func (t *Telegram) SetChatID(id int64) { t.chatID.Store(id) }

// ChatID returns the current control chat.
func (t *Telegram) ChatID() int64 { return t.chatID.Load() }

func (t *Telegram) Notify(ctx context.Context, a Alert) error {
	chat := t.ChatID()
	if chat == 0 {
		t.logger.Debug().Str("title", a.Title).Msg("No control chat yet, alert dropped")
		return nil
	}
	_, err := t.api.SendMessage(ctx, chat, a.Text(), nil)
	t.record("alert", err)
	if err != nil {
		return fmt.Errorf("telegram alert: %w", err)
	}
	t.logger.Info().Str("level", string(a.Level)).Str("title", a.Title).Int64("chat_id", chat).Msg("Alert sent")
	return nil
}

func (t *Telegram) Publish(ctx context.Context, it *state.Item, analysis *temporal.Analysis) (state.Notification, error) {
	chat := t.ChatID()
	if chat == 0 {
		return state.Notification{}, fmt.Errorf("telegram preview: no control chat")
	}
	id, err := t.api.SendMessage(ctx, chat, Caption(it, analysis), PreviewKeyboard(it.ID))
	t.record("preview", err)
	if err != nil {
		return state.Notification{}, fmt.Errorf("telegram preview: %w", err)
	}
	return state.Notification{Channel: ChannelTelegram, ChatID: chat, MessageID: telegram.FormatID(id)}, nil
}

func (t *Telegram) Retract(ctx context.Context, ref state.Notification) error {
	id, err := telegram.ParseID(ref.MessageID)
	if err != nil {
		return fmt.Errorf("telegram retract: bad message id %q", ref.MessageID)
	}
	err = t.api.DeleteMessage(ctx, ref.ChatID, id)
	t.record("retract", err)
	return err
}

func (t *Telegram) record(kind string, err error) {
	if t.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.metrics.RecordNotification(kind, result)
}

// Callback data prefixes understood by the command poller.
const (
	CallbackApprove = "item:approve:"
	CallbackReject  = "item:reject:"
	CallbackDelete  = "item:delete:"
	CallbackSTV     = "item:stv:"
	CallbackAdjust  = "set:adj:"
)

// SettingsPanel lists the settings offered as -/+ buttons and their step.
var SettingsPanel = []struct {
	Key  string
	Step float64
}{
	{"score_threshold", 0.05},
	{"scroll_pause_seconds", 0.1},
	{"loop_sleep_seconds", 0.5},
	{"target_sent_per_session", 1},
}

// SettingsKeyboard returns one -/+ row per panel setting. Button data is
// CallbackAdjust + "<key>:<delta>".
func SettingsKeyboard() *telegram.InlineKeyboard {
	rows := make([][]telegram.Button, 0, len(SettingsPanel))
	for _, p := range SettingsPanel {
		step := strconv.FormatFloat(p.Step, 'f', -1, 64)
		rows = append(rows, []telegram.Button{
			{Text: "➖ " + p.Key, CallbackData: CallbackAdjust + p.Key + ":-" + step},
			{Text: "➕", CallbackData: CallbackAdjust + p.Key + ":" + step},
		})
	}
	return &telegram.InlineKeyboard{Rows: rows}
}

// PreviewKeyboard returns the decision buttons attached to a preview.
func PreviewKeyboard(itemID string) *telegram.InlineKeyboard {
	return &telegram.InlineKeyboard{Rows: [][]telegram.Button{
		{
			{Text: "✅ Approve", CallbackData: CallbackApprove + itemID},
			{Text: "❌ Reject", CallbackData: CallbackReject + itemID},
		},
		{
			{Text: "🗑 Delete", CallbackData: CallbackDelete + itemID},
			{Text: "🧮 STV", CallbackData: CallbackSTV + itemID},
		},
	}}
}
