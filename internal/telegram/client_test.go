package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("TOKEN", zerolog.Nop(), WithBaseURL(srv.URL),
		WithRetry(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
}

func TestSendMessage(t *testing.T) {
	var got sendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77,"chat":{"id":5}}}`))
	})

	kb := &InlineKeyboard{Rows: [][]Button{{{Text: "ok", CallbackData: "item:approve:vid_1"}}}}
	id, err := c.SendMessage(context.Background(), 5, "hello", kb)

	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, int64(5), got.ChatID)
	assert.Equal(t, "hello", got.Text)
	require.NotNil(t, got.ReplyMarkup)
	assert.Equal(t, "item:approve:vid_1", got.ReplyMarkup.Rows[0][0].CallbackData)
}

func TestSendMessage_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	id, err := c.SendMessage(context.Background(), 5, "hi", nil)

	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendMessage_RateLimitExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3"}`))
	})

	_, err := c.SendMessage(context.Background(), 5, "hi", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrRateLimit))
	var apiErr *serrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
}

func TestCall_TransportTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New("TOKEN", zerolog.Nop(), WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
		WithRetry(retry.Config{MaxAttempts: 1}))

	err := c.AnswerCallback(context.Background(), "cb", "ok")

	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.ErrTimeout))
	assert.True(t, serrors.IsRetryable(err))
}

func TestDeleteMessage_PermanentError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`))
	})

	err := c.DeleteMessage(context.Background(), 5, 9)

	var apiErr *serrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetUpdates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 11, body["offset"])
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":11,"message":{"message_id":1,"chat":{"id":5},"from":{"id":9,"username":"op"},"text":"/status"}},
			{"update_id":12,"callback_query":{"id":"cb1","data":"item:reject:vid_2","message":{"message_id":3,"chat":{"id":5}}}}
		]}`))
	})

	ups, err := c.GetUpdates(context.Background(), 11, 0)

	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "/status", ups[0].Message.Text)
	assert.Equal(t, "op", ups[0].Message.From.Username)
	assert.Equal(t, "item:reject:vid_2", ups[1].CallbackQuery.Data)
	assert.Equal(t, int64(5), ups[1].CallbackQuery.Message.Chat.ID)
}

func TestCall_GarbageBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("<html>", 3)))
	})

	_, err := c.GetUpdates(context.Background(), 0, 0)
	assert.True(t, serrors.IsRetryable(err))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(FormatID(123))
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)
}
