package command

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/notify"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

type fakeController struct {
	agg      *state.Aggregate
	calls    []string
	startErr error
	actor    string
}

func newFakeController() *fakeController {
	agg := state.New()
	agg.Items["vid_1"] = &state.Item{ID: "vid_1", Status: state.StatusPending}
	return &fakeController{agg: agg}
}

func (f *fakeController) Start(context.Context) (string, error) {
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return "", f.startErr
	}
	f.agg.ActiveSessionID = "sess_0123456789"
	return f.agg.ActiveSessionID, nil
}

func (f *fakeController) Stop(_ context.Context, reason string) error {
	f.calls = append(f.calls, "stop")
	if f.agg.ActiveSessionID == "" {
		return serrors.ErrNoActiveSession
	}
	f.agg.ActiveSessionID = ""
	return nil
}

func (f *fakeController) Pause(context.Context) error {
	f.calls = append(f.calls, "pause")
	return nil
}

func (f *fakeController) Resume(context.Context) error {
	f.calls = append(f.calls, "resume")
	return nil
}

func (f *fakeController) SetStatus(_ context.Context, id string, st state.Status, actor string) (*state.Item, error) {
	f.calls = append(f.calls, "status:"+string(st))
	f.actor = actor
	it, err := f.agg.Item(id)
	if err != nil {
		return nil, err
	}
	it.Status = st
	cp := *it
	return &cp, nil
}

func (f *fakeController) SetSetting(_ context.Context, key, value string) (any, error) {
	return f.agg.Settings.Set(key, value)
}

func (f *fakeController) AdjustSetting(_ context.Context, key string, delta float64) (float64, error) {
	f.calls = append(f.calls, "adjust")
	return f.agg.Settings.ApplyDelta(key, delta)
}

func (f *fakeController) Snapshot(context.Context) (*state.Aggregate, error) {
	return f.agg, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(context.Context, *state.Item, state.Settings) temporal.Analysis {
	return temporal.Analysis{Category: temporal.CategoryNormal}
}

func newDispatcher(ctrl Controller) *Dispatcher {
	return NewDispatcher(ctrl, fakeAnalyzer{}, nil, zerolog.Nop())
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		name string
		args []string
	}{
		{"/start", "start", []string{}},
		{"/Approve@ScoutBot vid_1", "approve", []string{"vid_1"}},
		{"  set score_threshold 0.7 ", "set", []string{"score_threshold", "0.7"}},
		{"", "", nil},
	}
	for _, tt := range tests {
		name, args := Parse(tt.line)
		assert.Equal(t, tt.name, name, tt.line)
		assert.Equal(t, tt.args, args, tt.line)
	}
}

func TestExecute_Lifecycle(t *testing.T) {
	ctrl := newFakeController()
	d := newDispatcher(ctrl)
	ctx := context.Background()

	r := d.Execute(ctx, "/start", "op")
	require.NoError(t, r.Err)
	assert.Contains(t, r.Text, "sess_0123456789")

	assert.NoError(t, d.Execute(ctx, "/pause", "op").Err)
	assert.NoError(t, d.Execute(ctx, "/resume", "op").Err)
	assert.NoError(t, d.Execute(ctx, "/stop", "op").Err)

	r = d.Execute(ctx, "/stop", "op")
	assert.ErrorIs(t, r.Err, serrors.ErrNoActiveSession)
	assert.Equal(t, "⚠️ No active session.", r.Text)

	assert.Equal(t, []string{"start", "pause", "resume", "stop", "stop"}, ctrl.calls)
}

func TestExecute_DeviceNotReady(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = serrors.ErrDeviceNotReady
	r := newDispatcher(ctrl).Execute(context.Background(), "/start", "op")

	assert.ErrorIs(t, r.Err, serrors.ErrDeviceNotReady)
	assert.Contains(t, r.Text, "Device not ready")
}

func TestExecute_ItemDecisions(t *testing.T) {
	ctrl := newFakeController()
	d := newDispatcher(ctrl)

	r := d.Execute(context.Background(), "/approve vid_1", "telegram:@op")
	require.NoError(t, r.Err)
	assert.Equal(t, "✅ vid_1 → approved", r.Text)
	assert.Equal(t, "telegram:@op", ctrl.actor)

	r = d.Execute(context.Background(), "/reject vid_404", "op")
	assert.ErrorIs(t, r.Err, serrors.ErrItemNotFound)

	r = d.Execute(context.Background(), "/delete", "op")
	assert.Error(t, r.Err)
	assert.Contains(t, r.Text, "usage")
}

func TestExecute_SetAndStatus(t *testing.T) {
	ctrl := newFakeController()
	d := newDispatcher(ctrl)

	r := d.Execute(context.Background(), "/set score_threshold 0.7", "op")
	require.NoError(t, r.Err)
	assert.Equal(t, "⚙️ score_threshold = 0.7", r.Text)

	r = d.Execute(context.Background(), "/set bogus 1", "op")
	assert.ErrorIs(t, r.Err, serrors.ErrInvalidSetting)

	ctrl.agg.LastRisk = &risk.Assessment{Level: risk.LevelWarning, Justification: "remaining_s=120"}
	r = d.Execute(context.Background(), "/status", "op")
	require.NoError(t, r.Err)
	assert.Contains(t, r.Text, "No active session")
	assert.Contains(t, r.Text, "Risk: WARNING (remaining_s=120)")
	assert.Contains(t, r.Text, "pending=1")
	assert.Contains(t, r.Text, "threshold=0.70 safety=ON target=10")
}

func TestExecute_STV(t *testing.T) {
	r := newDispatcher(newFakeController()).Execute(context.Background(), "/stv vid_1", "op")

	require.NoError(t, r.Err)
	assert.Contains(t, r.Text, "🆔 vid_1")
	assert.Contains(t, r.Text, "🧮 STV: N/A")
}

func TestExecute_UnknownAndHelp(t *testing.T) {
	d := newDispatcher(newFakeController())

	r := d.Execute(context.Background(), "/dance", "op")
	assert.Error(t, r.Err)
	assert.Equal(t, "Unknown command. Send /help.", r.Text)

	r = d.Execute(context.Background(), "/help", "op")
	assert.NoError(t, r.Err)
	assert.Contains(t, r.Text, "/stv <id>")
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "stv", metricName("stv"))
	assert.Equal(t, "unknown", metricName("rm"))
}

func TestExecute_SettingsPanel(t *testing.T) {
	ctrl := newFakeController()
	d := newDispatcher(ctrl)
	ctx := context.Background()

	r := d.Execute(ctx, "/settings", "op")
	require.NoError(t, r.Err)
	assert.Contains(t, r.Text, "score_threshold = 0.65")
	require.NotNil(t, r.Keyboard)
	assert.Len(t, r.Keyboard.Rows, len(notify.SettingsPanel))

	r = d.Execute(ctx, "/adjust score_threshold 0.05", "op")
	require.NoError(t, r.Err)
	assert.Equal(t, "⚙️ score_threshold = 0.7", r.Text)
	assert.Equal(t, 0.7, ctrl.agg.Settings.Float("score_threshold"))

	r = d.Execute(ctx, "/adjust target_sent_per_session -100", "op")
	require.NoError(t, r.Err)
	assert.Equal(t, 0, ctrl.agg.Settings.Int("target_sent_per_session"))

	r = d.Execute(ctx, "/adjust risk_safety_enabled 1", "op")
	assert.ErrorIs(t, r.Err, serrors.ErrInvalidSetting)

	r = d.Execute(ctx, "/adjust score_threshold lots", "op")
	assert.ErrorIs(t, r.Err, serrors.ErrInvalidSetting)
}
