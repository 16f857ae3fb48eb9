package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesTables(t *testing.T) {
	j := newTestJournal(t)

	for _, table := range []string{"steps", "decisions", "meta"} {
		var count int
		err := j.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
	assert.NoError(t, j.Ping())
}

func TestRecordStep_RecentSteps(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i, outcome := range []string{"kept", "discarded", "ad_skipped"} {
		st := &Step{
			SessionID: "sess_a",
			ItemID:    "vid_" + outcome,
			Outcome:   outcome,
			Score:     0.5,
			Keep:      outcome == "kept",
			RiskLevel: "SAFE",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, j.RecordStep(ctx, st))
		assert.NotZero(t, st.ID)
	}
	require.NoError(t, j.RecordStep(ctx, &Step{SessionID: "sess_b", Outcome: "stopped", RiskLevel: "HIGH_RISK"}))

	steps, err := j.RecentSteps(ctx, "sess_a", 2)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "ad_skipped", steps[0].Outcome)
	assert.Equal(t, "discarded", steps[1].Outcome)

	all, err := j.RecentSteps(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	counts, err := j.OutcomeCounts(ctx, "sess_a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"kept": 1, "discarded": 1, "ad_skipped": 1}, counts)
}

func TestRecordDecision(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordDecision(ctx, &Decision{ItemID: "vid_1", FromStatus: "pending", ToStatus: "approved", Actor: "telegram:7"}))
	require.NoError(t, j.RecordDecision(ctx, &Decision{ItemID: "vid_1", FromStatus: "approved", ToStatus: "deleted", Actor: "api"}))

	ds, err := j.Decisions(ctx, "vid_1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "approved", ds[0].ToStatus)
	assert.Equal(t, "deleted", ds[1].ToStatus)
}

func TestRunRetention(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordStep(ctx, &Step{SessionID: "s", Outcome: "kept", RiskLevel: "SAFE", CreatedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, j.RecordStep(ctx, &Step{SessionID: "s", Outcome: "kept", RiskLevel: "SAFE"}))

	require.NoError(t, j.RunRetention(ctx, 24*time.Hour))

	steps, err := j.RecentSteps(ctx, "s", 10)
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}
