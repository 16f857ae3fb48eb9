// Package telegram is a small Bot API client: long-poll updates, send and
// delete messages, answer button presses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Telegram Bot API over plain HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	retry   retry.Config
	logger  zerolog.Logger
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL points the client at another API host (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// WithRetry overrides the backoff for outbound calls.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a client for the bot identified by token.
func New(token string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		retry:   retry.DefaultConfig(),
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	c.baseURL = c.baseURL + "/bot" + token
	return c
}

// ---- Bot API wire types ----

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Update is one getUpdates entry. Only text messages and button presses
// are requested.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// InlineKeyboard is a reply_markup with callback buttons.
type InlineKeyboard struct {
	Rows [][]Button `json:"inline_keyboard"`
}

type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
}

// GetUpdates long-polls for updates after offset. It is not retried: the
// caller's poll loop already backs off.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSecs int) ([]Update, error) {
	var out []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeoutSecs,
		"allowed_updates": []string{"message", "callback_query"},
	}, &out)
	return out, err
}

// SendMessage posts text to chatID and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, kb *InlineKeyboard) (int64, error) {
	return retry.DoValue(ctx, c.retry, func(ctx context.Context) (int64, error) {
		var msg Message
		if err := c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: kb}, &msg); err != nil {
			return 0, err
		}
		return msg.MessageID, nil
	})
}

// DeleteMessage removes a message the bot posted.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.call(ctx, "deleteMessage", map[string]int64{"chat_id": chatID, "message_id": messageID}, nil)
	})
}

// AnswerCallback acknowledges a button press with a short toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]string{"callback_query_id": callbackID, "text": text}, nil)
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s marshal: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("telegram %s: %w: %v", method, serrors.ErrTimeout, err)
		}
		return fmt.Errorf("telegram %s: %w: %v", method, serrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s read: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return serrors.NewAPIError("telegram", resp.StatusCode, "unmarshal "+method+": "+err.Error())
	}
	if !result.OK {
		code := result.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		c.logger.Debug().Str("method", method).Int("code", code).Str("description", result.Description).Msg("Bot API call rejected")
		apiErr := serrors.NewAPIError("telegram", code, method+": "+result.Description)
		if code == http.StatusTooManyRequests {
			apiErr.Err = serrors.ErrRateLimit
		}
		return apiErr
	}
	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("telegram %s result: %w", method, err)
		}
	}
	return nil
}

// FormatID renders a message id for storage.
func FormatID(id int64) string { return strconv.FormatInt(id, 10) }

// ParseID reverses FormatID.
func ParseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
