package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_ComputesSTV(t *testing.T) {
	in := Input{
		CapturedAt: capturedAt,
		Text:       "il y a 10 min",
		Counters:   Counters{Likes: Int(600), Comments: Int(40), Shares: Int(50)},
		Source:     "test",
	}

	a := Analyze(in, DefaultConfig())

	require.NotNil(t, a.AgeMinutes)
	require.NotNil(t, a.STV)
	assert.InDelta(t, 0.45*60+0.40*5+0.15*4, *a.STV, 1e-9)
	assert.Equal(t, CategoryPreViral, a.Category)
	assert.Empty(t, a.Notes)
}

func TestAnalyze_UnknownAge(t *testing.T) {
	a := Analyze(Input{CapturedAt: capturedAt, Counters: Counters{Likes: Int(10)}}, DefaultConfig())

	assert.Nil(t, a.AgeMinutes)
	assert.Nil(t, a.STV)
	assert.Equal(t, CategoryNormal, a.Category)
	assert.Equal(t, []string{"age unavailable (no_text)"}, a.Notes)
	assert.Equal(t, "none", a.Source)
}

func TestAnalyze_IncompleteCounters(t *testing.T) {
	a := Analyze(Input{CapturedAt: capturedAt, Text: "2 hours ago", Counters: Counters{Likes: Int(10)}}, DefaultConfig())

	require.NotNil(t, a.AgeMinutes)
	assert.Nil(t, a.STV)
	assert.Contains(t, a.Notes, "incomplete counters")
}

func TestAnalyzeMeta_VotesSamplesAndHonorsAgeSeconds(t *testing.T) {
	meta := map[string]any{
		MetaOCRSamples: []any{
			RightColumnTag + "❤️ 1.2K\n💬 340\n✈️ 12\n🔖 5",
			RightColumnTag + "❤️ 1.2K\n💬 340\n✈️ 12\n🔖 5",
		},
		MetaAgeSeconds: float64(1200),
	}

	a := AnalyzeMeta(meta, capturedAt, DefaultConfig())

	assert.Equal(t, MetaOCRSamples, a.Source)
	require.NotNil(t, a.AgeMinutes)
	assert.Equal(t, 20.0, *a.AgeMinutes)
	require.NotNil(t, a.STV)
	assert.Equal(t, CategoryPreViral, a.Category)
}

func TestAnalyzeMeta_ExplicitMetrics(t *testing.T) {
	meta := map[string]any{
		MetaOCRMetrics: map[string]any{"likes": float64(90), "comments": "12", "shares": "1,5K"},
		MetaAgeText:    "il y a 3 h",
	}

	a := AnalyzeMeta(meta, capturedAt, DefaultConfig())

	assert.Equal(t, MetaOCRMetrics, a.Source)
	require.NotNil(t, a.Counters.Shares)
	assert.Equal(t, int64(1500), *a.Counters.Shares)
	require.NotNil(t, a.STV)
}

func TestFormatBlock_ShowsNAForUnknowns(t *testing.T) {
	out := FormatBlock(Analyze(Input{CapturedAt: capturedAt}, DefaultConfig()))

	assert.Contains(t, out, "📅 Published: unavailable")
	assert.Contains(t, out, "❤️ N/A")
	assert.Contains(t, out, "🧮 STV: N/A")
	assert.Contains(t, out, "🟡 Normal")
	assert.Contains(t, out, "age unavailable")
}

func TestFormatBlock_GroupsThousands(t *testing.T) {
	assert.Equal(t, "1 234 567", fmtCount(Int(1_234_567)))
	assert.Equal(t, "999", fmtCount(Int(999)))
	assert.Equal(t, "N/A", fmtCount(nil))
}
