package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/reel-scout/internal/retry"
	"github.com/p-blackswan/reel-scout/internal/selector"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/telegram"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

func testItem() *state.Item {
	return &state.Item{
		ID:           "vid_abc",
		ExternalRef:  "https://www.instagram.com/reel/Cabc123/",
		Status:       state.StatusPending,
		Score:        0.72,
		Threshold:    0.65,
		ScoreViral:   0.74,
		ScoreLatent:  0.41,
		Label:        selector.LabelViral,
		Reason:       "Dynamic rhythm",
		Title:        "Dynamic rhythm (score 0.72)",
		Hashtags:     []string{"#reels", "#viral"},
		ScoreDetails: selector.Features{Rhythm: 0.84, Banality: 0.55, ViralPotential: 0.8},
		Meta:         map[string]any{"device_actions": []any{"scroll", "pause 0.80s"}},
	}
}

func TestCaption(t *testing.T) {
	c := Caption(testItem(), nil)

	assert.True(t, strings.HasPrefix(c, "🔥 ALREADY VIRAL\n"))
	assert.Contains(t, c, "🔗 https://www.instagram.com/reel/Cabc123/")
	assert.Contains(t, c, "📈 Score: 0.72 (threshold 0.65)")
	assert.Contains(t, c, "Dynamic rhythm\nHigh banality\nHigh viral potential")
	assert.Contains(t, c, "#reels #viral")
	assert.Contains(t, c, "📱 Device: scroll, pause 0.80s")
	assert.Contains(t, c, "🆔 vid_abc")
	assert.NotContains(t, c, "STV")
}

func TestCaption_AnalysisOnlyForRetained(t *testing.T) {
	a := temporal.Analysis{Category: temporal.CategoryNormal}
	it := testItem()

	assert.Contains(t, Caption(it, &a), "N/A")

	it.Status = state.StatusRejected
	assert.NotContains(t, Caption(it, &a), "N/A")
}

func TestCaption_LatentHeader(t *testing.T) {
	it := testItem()
	it.Label, it.Score = selector.LabelLatent, 0.3
	assert.True(t, strings.HasPrefix(Caption(it, nil), "💎 LATENT ITEM"))

	it.Label = selector.LabelIgnore
	assert.True(t, strings.HasPrefix(Caption(it, nil), "🎬 ITEM"))
}

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("down")}
	c := &recordingNotifier{}

	err := NewMulti(a, b, c).Notify(context.Background(), Alert{Level: LevelWarning, Title: "risk"})

	assert.ErrorContains(t, err, "down")
	assert.Len(t, a.alerts, 1)
	assert.Len(t, c.alerts, 1)
}

func TestAlertText(t *testing.T) {
	txt := Alert{Level: LevelCritical, Title: "Session auto-stopped", Message: "HIGH_RISK", Err: errors.New("boom")}.Text()
	assert.Equal(t, "🚨 Session auto-stopped\nHIGH_RISK\n(boom)", txt)
}

type tgServer struct {
	mu      sync.Mutex
	methods []string
	bodies  []map[string]any
}

func (s *tgServer) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.methods = append(s.methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":501}}`))
}

func newTelegram(t *testing.T, chat int64) (*Telegram, *tgServer) {
	t.Helper()
	ts := &tgServer{}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	t.Cleanup(srv.Close)
	api := telegram.New("T", zerolog.Nop(), telegram.WithBaseURL(srv.URL),
		telegram.WithRetry(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}))
	return NewTelegram(api, chat, zerolog.Nop()), ts
}

func TestTelegram_PublishAndRetract(t *testing.T) {
	n, srv := newTelegram(t, 42)

	ref, err := n.Publish(context.Background(), testItem(), nil)
	require.NoError(t, err)
	assert.Equal(t, state.Notification{Channel: ChannelTelegram, ChatID: 42, MessageID: "501"}, ref)

	require.NoError(t, n.Retract(context.Background(), ref))

	require.Equal(t, []string{"sendMessage", "deleteMessage"}, srv.methods)
	markup := srv.bodies[0]["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	first := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "item:approve:vid_abc", first["callback_data"])
	assert.EqualValues(t, 501, srv.bodies[1]["message_id"])
}

func TestTelegram_NoChatYet(t *testing.T) {
	n, srv := newTelegram(t, 0)

	require.NoError(t, n.Notify(context.Background(), Alert{Title: "x"}))
	_, err := n.Publish(context.Background(), testItem(), nil)
	assert.Error(t, err)
	assert.Empty(t, srv.methods)

	n.SetChatID(9)
	require.NoError(t, n.Notify(context.Background(), Alert{Title: "x"}))
	assert.Equal(t, []string{"sendMessage"}, srv.methods)
	assert.EqualValues(t, 9, srv.bodies[0]["chat_id"])
}

type fakeSlack struct {
	posted  []string
	deleted []string
}

func (f *fakeSlack) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.posted = append(f.posted, channelID)
	return "C123", "1700000000.0001", nil
}

func (f *fakeSlack) DeleteMessageContext(_ context.Context, channel, ts string) (string, string, error) {
	f.deleted = append(f.deleted, channel+"/"+ts)
	return channel, ts, nil
}

func TestSlack_PublishRetract(t *testing.T) {
	api := &fakeSlack{}
	s := NewSlackWithAPI(api, "#scouting", zerolog.Nop())

	ref, err := s.Publish(context.Background(), testItem(), nil)
	require.NoError(t, err)
	assert.Equal(t, state.Notification{Channel: ChannelSlack, Target: "C123", MessageID: "1700000000.0001"}, ref)

	require.NoError(t, Router{ChannelSlack: s}.Retract(context.Background(), ref))
	assert.Equal(t, []string{"C123/1700000000.0001"}, api.deleted)

	require.NoError(t, s.Notify(context.Background(), Alert{Title: "hi"}))
	assert.Equal(t, []string{"#scouting", "#scouting"}, api.posted)
}

func TestRouter_UnknownChannel(t *testing.T) {
	assert.NoError(t, Router{}.Retract(context.Background(), state.Notification{Channel: "fax"}))
}

func TestLog(t *testing.T) {
	l := NewLog(zerolog.Nop())
	ref, err := l.Publish(context.Background(), testItem(), nil)
	require.NoError(t, err)
	assert.Equal(t, ChannelLog, ref.Channel)
	assert.NotEmpty(t, ref.MessageID)
	assert.NoError(t, l.Notify(context.Background(), Alert{Title: "x"}))
}
