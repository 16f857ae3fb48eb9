package command

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/notify"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/telegram"
)

// Bot is the part of the Telegram client the poller needs.
type Bot interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSecs int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboard) (int64, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Poller long-polls Telegram for operator commands. The last handled
// update id is persisted so a restart neither loses nor replays commands.
type Poller struct {
	bot        Bot
	store      *state.Store
	dispatcher *Dispatcher
	allowed    map[int64]bool
	timeout    int
	backoff    time.Duration
	onControl  func(chatID int64)
	logger     zerolog.Logger
}

// PollerOption configures Poller.
type PollerOption func(*Poller)

// WithAllowedChats restricts commands to these chats. Empty allows all.
func WithAllowedChats(ids []int64) PollerOption {
	return func(p *Poller) {
		for _, id := range ids {
			p.allowed[id] = true
		}
	}
}

// WithPollTimeout sets the getUpdates long-poll timeout in seconds.
func WithPollTimeout(secs int) PollerOption {
	return func(p *Poller) { p.timeout = secs }
}

// WithErrorBackoff sets the pause after a failed poll.
func WithErrorBackoff(d time.Duration) PollerOption {
	return func(p *Poller) { p.backoff = d }
}

// WithControlChatHook is called when an operator claims the control chat.
func WithControlChatHook(fn func(chatID int64)) PollerOption {
	return func(p *Poller) { p.onControl = fn }
}

func NewPoller(bot Bot, store *state.Store, d *Dispatcher, logger zerolog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		bot:        bot,
		store:      store,
		dispatcher: d,
		allowed:    map[int64]bool{},
		timeout:    30,
		backoff:    5 * time.Second,
		logger:     logger.With().Str("component", "command").Logger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Int("allowed_chats", len(p.allowed)).Msg("Command poller started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
		}
	}
}

// PollOnce fetches and handles one batch of updates.
func (p *Poller) PollOnce(ctx context.Context) error {
	agg, err := p.store.Load()
	if err != nil {
		return err
	}
	updates, err := p.bot.GetUpdates(ctx, agg.LastUpdateID+1, p.timeout)
	if err != nil {
		return err
	}
	for _, upd := range updates {
		if upd.UpdateID <= agg.LastUpdateID {
			continue
		}
		p.handle(ctx, upd)
		uid := upd.UpdateID
		if err := p.store.UpdateLocked(func(a *state.Aggregate) error {
			a.LastUpdateID = max(a.LastUpdateID, uid)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) isAllowed(chatID int64) bool {
	return len(p.allowed) == 0 || p.allowed[chatID]
}

func (p *Poller) handle(ctx context.Context, upd telegram.Update) {
	switch {
	case upd.Message != nil:
		p.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		p.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (p *Poller) handleMessage(ctx context.Context, msg *telegram.Message) {
	chat := msg.Chat.ID
	if !p.isAllowed(chat) {
		p.logger.Warn().Int64("chat_id", chat).Msg("Message from chat outside allow list")
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if name, _ := Parse(text); name == "start" {
		p.claimControlChat(chat)
	}

	r := p.dispatcher.Execute(ctx, text, actorOf(msg.From))
	p.reply(ctx, chat, r.Text, r.Keyboard)
}

func (p *Poller) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chat := cb.Message.Chat.ID
	if !p.isAllowed(chat) {
		return
	}

	line, ok := callbackCommand(cb.Data)
	if !ok {
		_ = p.bot.AnswerCallback(ctx, cb.ID, "Unknown action")
		return
	}
	r := p.dispatcher.Execute(ctx, line, actorOf(cb.From))
	toast := r.Text
	if r.Command == "stv" && r.Err == nil {
		toast = "STV computed"
		p.reply(ctx, chat, r.Text, nil)
	}
	if err := p.bot.AnswerCallback(ctx, cb.ID, firstLine(toast)); err != nil {
		p.logger.Debug().Err(err).Msg("answerCallbackQuery failed")
	}
}

func (p *Poller) claimControlChat(chat int64) {
	err := p.store.UpdateLocked(func(a *state.Aggregate) error {
		a.ControlChatID = chat
		return nil
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to persist control chat")
		return
	}
	if p.onControl != nil {
		p.onControl(chat)
	}
}

func (p *Poller) reply(ctx context.Context, chat int64, text string, kb *telegram.InlineKeyboard) {
	if text == "" {
		return
	}
	if _, err := p.bot.SendMessage(ctx, chat, text, kb); err != nil {
		p.logger.Error().Err(err).Int64("chat_id", chat).Msg("Reply failed")
	}
}

// callbackCommand maps preview button data to a command line.
func callbackCommand(data string) (string, bool) {
	if rest, ok := strings.CutPrefix(data, notify.CallbackAdjust); ok {
		i := strings.LastIndexByte(rest, ':')
		if i <= 0 || i == len(rest)-1 {
			return "", false
		}
		return "adjust " + rest[:i] + " " + rest[i+1:], true
	}
	for prefix, name := range map[string]string{
		notify.CallbackApprove: "approve",
		notify.CallbackReject:  "reject",
		notify.CallbackDelete:  "delete",
		notify.CallbackSTV:     "stv",
	} {
		if id, ok := strings.CutPrefix(data, prefix); ok && id != "" {
			return name + " " + id, true
		}
	}
	return "", false
}

func actorOf(u telegram.User) string {
	if u.Username != "" {
		return "telegram:@" + u.Username
	}
	return "telegram:" + strconv.FormatInt(u.ID, 10)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
