package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/reel-scout/internal/config"
	"github.com/p-blackswan/reel-scout/internal/instance"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

type ctlEnv struct {
	dir   string
	state string
	cfg   *config.Config
}

func newCtlEnv(t *testing.T) *ctlEnv {
	t.Helper()
	dir := t.TempDir()
	return &ctlEnv{
		dir:   dir,
		state: filepath.Join(dir, "state.json"),
		cfg:   &config.Config{DataDir: dir, MgmtJWTSecret: "ctl-secret"},
	}
}

// run executes scoutctl with the env's state and history paths.
func (e *ctlEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(e.cfg)
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{"scoutctl", "--state", e.state, "--history", filepath.Join(e.dir, "history.db")}, args...)
	err := app.Run(full)
	return out.String(), err
}

func (e *ctlEnv) seed(t *testing.T, fn func(*state.Aggregate)) {
	t.Helper()
	store, err := state.NewStore(e.state, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.UpdateLocked(func(a *state.Aggregate) error {
		fn(a)
		return nil
	}))
}

func (e *ctlEnv) load(t *testing.T) *state.Aggregate {
	t.Helper()
	store, err := state.NewStore(e.state, zerolog.Nop())
	require.NoError(t, err)
	agg, err := store.Load()
	require.NoError(t, err)
	return agg
}

func TestAnalyze_JSON(t *testing.T) {
	env := newCtlEnv(t)
	sample := filepath.Join(env.dir, "sample.txt")
	require.NoError(t, os.WriteFile(sample, []byte("1 240 likes · 35 comments\n12 shares"), 0o644))

	out, err := env.run(t, "analyze", "--age-seconds", "3600", "--json", sample)
	require.NoError(t, err)

	var a temporal.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	require.NotNil(t, a.Counters.Likes)
	assert.Equal(t, int64(1240), *a.Counters.Likes)
	require.NotNil(t, a.AgeMinutes)
	assert.InDelta(t, 60, *a.AgeMinutes, 0.01)
}

func TestAnalyze_Block(t *testing.T) {
	env := newCtlEnv(t)
	sample := filepath.Join(env.dir, "sample.txt")
	require.NoError(t, os.WriteFile(sample, []byte("nice video"), 0o644))

	out, err := env.run(t, "analyze", sample)
	require.NoError(t, err)
	assert.Contains(t, out, "📅 Published: unavailable")
	assert.Contains(t, out, "🧮 STV: N/A")
}

func TestReadSamples(t *testing.T) {
	got, err := readSamples(nil, bytes.NewBufferString("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, []string{"from stdin"}, got)

	_, err = readSamples([]string{"/does/not/exist"}, nil)
	assert.Error(t, err)
}

func TestSampleMeta(t *testing.T) {
	one := sampleMeta([]string{"a"}, -1)
	assert.Equal(t, "a", one[temporal.MetaOCRText])
	assert.NotContains(t, one, temporal.MetaAgeSeconds)

	many := sampleMeta([]string{"a", "b"}, 120)
	assert.Equal(t, []string{"a", "b"}, many[temporal.MetaOCRSamples])
	assert.Equal(t, int64(120), many[temporal.MetaAgeSeconds])
}

func TestItems_ListShowSetStatus(t *testing.T) {
	env := newCtlEnv(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.seed(t, func(a *state.Aggregate) {
		a.Items["vid_old"] = &state.Item{ID: "vid_old", Status: state.StatusPending, ObservedAt: now, ExternalRef: "https://www.instagram.com/reel/Cold/"}
		a.Items["vid_new"] = &state.Item{ID: "vid_new", Status: state.StatusRejected, ObservedAt: now.Add(time.Minute)}
	})

	out, err := env.run(t, "items", "list")
	require.NoError(t, err)
	assert.Less(t, bytes.Index([]byte(out), []byte("vid_new")), bytes.Index([]byte(out), []byte("vid_old")))

	out, err = env.run(t, "items", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "vid_old")
	assert.NotContains(t, out, "vid_new")

	out, err = env.run(t, "items", "show", "vid_old")
	require.NoError(t, err)
	assert.Contains(t, out, "🆔 vid_old")

	_, err = env.run(t, "items", "set-status", "vid_old", "approved")
	require.NoError(t, err)
	assert.Equal(t, state.StatusApproved, env.load(t).Items["vid_old"].Status)

	_, err = env.run(t, "items", "set-status", "vid_old", "maybe")
	assert.Error(t, err)

	_, err = env.run(t, "items", "show", "vid_missing")
	assert.Error(t, err)
}

func TestItems_AttachOCR(t *testing.T) {
	env := newCtlEnv(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.seed(t, func(a *state.Aggregate) {
		a.Items["vid_a"] = &state.Item{ID: "vid_a", Status: state.StatusPending, ObservedAt: now}
	})
	first := filepath.Join(env.dir, "one.txt")
	second := filepath.Join(env.dir, "two.txt")
	require.NoError(t, os.WriteFile(first, []byte(temporal.RightColumnTag+"❤️ 1.2K\n💬 340\n✈️ 12\n🔖 5"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(temporal.RightColumnTag+"❤️ 1.2K\n💬 341\n✈️ 12\n🔖 5"), 0o644))

	out, err := env.run(t, "items", "attach-ocr", "--age-seconds", "1200", "vid_a", first, second)
	require.NoError(t, err)
	assert.Contains(t, out, "vid_a now has 2 text sample(s)")

	it := env.load(t).Items["vid_a"]
	a := temporal.AnalyzeMeta(it.Meta, it.ObservedAt, temporal.DefaultConfig())
	assert.Equal(t, temporal.MetaOCRSamples, a.Source)
	require.NotNil(t, a.AgeMinutes)
	assert.Equal(t, 20.0, *a.AgeMinutes)
	require.NotNil(t, a.STV)

	_, err = env.run(t, "items", "attach-ocr", "--age-seconds", "600", "vid_a")
	require.NoError(t, err)
	assert.EqualValues(t, 600, env.load(t).Items["vid_a"].Meta[temporal.MetaAgeSeconds])

	_, err = env.run(t, "items", "attach-ocr", "--age-seconds", "60", "vid_missing")
	assert.Error(t, err)
}

func TestSettings_SetExportImport(t *testing.T) {
	env := newCtlEnv(t)

	_, err := env.run(t, "settings", "set", "score_threshold", "0.7")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, env.load(t).Settings.Float("score_threshold"), 1e-9)

	_, err = env.run(t, "settings", "set", "no_such_key", "1")
	assert.Error(t, err)

	exported := filepath.Join(env.dir, "settings.yaml")
	_, err = env.run(t, "settings", "export", "--out", exported)
	require.NoError(t, err)
	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "score_threshold: 0.7")

	patch := filepath.Join(env.dir, "patch.yaml")
	require.NoError(t, os.WriteFile(patch, []byte("score_threshold: 0.55\nrisk_safety_enabled: false\ntarget_sent_per_session: 4\n"), 0o644))
	out, err := env.run(t, "settings", "import", patch)
	require.NoError(t, err)
	assert.Contains(t, out, "target_sent_per_session = 4")

	agg := env.load(t)
	assert.InDelta(t, 0.55, agg.Settings.Float("score_threshold"), 1e-9)
	assert.False(t, agg.Settings.Bool("risk_safety_enabled"))
	assert.Equal(t, 4, agg.Settings.Int("target_sent_per_session"))

	out, err = env.run(t, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "loop_sleep_seconds")
}

func TestSession_RefusesWhileDaemonHoldsLock(t *testing.T) {
	env := newCtlEnv(t)
	env.seed(t, func(a *state.Aggregate) { a.ActiveSessionID = "sess_0123456789" })

	guard, err := instance.Acquire(env.state)
	require.NoError(t, err)

	_, err = env.run(t, "session", "pause")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	assert.False(t, env.load(t).SessionPaused)

	_, err = env.run(t, "session", "pause", "--force")
	require.NoError(t, err)
	assert.True(t, env.load(t).SessionPaused)

	require.NoError(t, guard.Release())

	out, err := env.run(t, "session", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "session stopped")
	agg := env.load(t)
	assert.Empty(t, agg.ActiveSessionID)
	assert.Equal(t, state.StopByUser, agg.LastSessionStopReason)

	_, err = env.run(t, "session", "resume")
	assert.Error(t, err)
}

func TestSession_Status(t *testing.T) {
	env := newCtlEnv(t)
	out, err := env.run(t, "session", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "threshold=")
}

func TestToken(t *testing.T) {
	env := newCtlEnv(t)
	out, err := env.run(t, "token", "--subject", "alice", "--role", "admin")
	require.NoError(t, err)
	assert.Len(t, bytes.Split(bytes.TrimSpace([]byte(out)), []byte(".")), 3)

	env.cfg.MgmtJWTSecret = ""
	_, err = env.run(t, "token", "--subject", "alice")
	assert.Error(t, err)
}

func TestYAMLScalar(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{3, "3"},
		{0.25, "0.25"},
		{true, "1"},
		{false, "0"},
		{"0.4", "0.4"},
	}
	for _, tt := range tests {
		got, err := yamlScalar(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := yamlScalar([]any{1})
	assert.Error(t, err)
}
