package temporal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestSanitizeAggregate_DropsLoneViewsOutlier(t *testing.T) {
	samples := []Counters{
		{Likes: Int(1200), Views: Int(999_999_999)},
		{Likes: Int(1200)},
		{Likes: Int(1250)},
	}

	c, reasons := Sanitize(Aggregate(samples), DefaultConfig().Limits)

	assert.Nil(t, c.Views)
	require.NotNil(t, c.Likes)
	assert.Equal(t, int64(1200), *c.Likes)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "abs_max")
}

func TestSanitize(t *testing.T) {
	limits := DefaultConfig().Limits

	c, reasons := Sanitize(Counters{Likes: Int(100), Views: Int(90)}, limits)
	assert.Nil(t, c.Views)
	assert.Equal(t, []string{"drop_views<likes"}, reasons)

	c, _ = Sanitize(Counters{Likes: Int(100), Views: Int(60_000)}, limits)
	assert.Nil(t, c.Views)

	c, reasons = Sanitize(Counters{Likes: Int(100), Views: Int(20_000)}, limits)
	require.NotNil(t, c.Views)
	assert.Empty(t, reasons)
}

func TestAggregate_EvenMedianRounds(t *testing.T) {
	c := Aggregate([]Counters{{Likes: Int(10)}, {Likes: Int(13)}, {Comments: Int(4)}})

	require.NotNil(t, c.Likes)
	assert.Equal(t, int64(12), *c.Likes)
	assert.Equal(t, int64(4), *c.Comments)
	assert.Nil(t, c.Sends)
}

func TestAggregate_MedianOfLargeValues(t *testing.T) {
	c := Aggregate([]Counters{{Likes: Int(math.MaxInt64)}, {Likes: Int(math.MaxInt64 - 2)}})

	require.NotNil(t, c.Likes)
	assert.Equal(t, int64(math.MaxInt64-1), *c.Likes)
}

func TestVote_AliasesSharesToSends(t *testing.T) {
	c, _ := Vote([]Counters{{Sends: Int(7)}}, DefaultConfig().Limits)

	require.NotNil(t, c.Shares)
	assert.Equal(t, int64(7), *c.Shares)
}

func TestComputeVelocity(t *testing.T) {
	v, ok := ComputeVelocity(300, 60)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	_, ok = ComputeVelocity(300, 0)
	assert.False(t, ok)
}

func TestComputeSTV_Legacy(t *testing.T) {
	stv, ok := ComputeSTV(Velocities{Likes: fp(10), Comments: fp(2), Shares: fp(5)})

	assert.True(t, ok)
	assert.InDelta(t, 4.5+2.0+0.3, stv, 1e-9)
}

func TestComputeSTV_Blend(t *testing.T) {
	v := Velocities{Likes: fp(10), Comments: fp(2), Shares: fp(5), Sends: fp(4), Saves: fp(1)}

	stv, ok := ComputeSTV(v)

	legacy := 0.45*10 + 0.40*5 + 0.15*2
	enriched := 0.30*10 + 0.10*2 + 0.30*4 + 0.20*1
	assert.True(t, ok)
	assert.InDelta(t, 0.5*legacy+0.5*enriched, stv, 1e-9)
}

func TestComputeSTV_Incomplete(t *testing.T) {
	_, ok := ComputeSTV(Velocities{Likes: fp(10), Comments: fp(2)})
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	th := DefaultConfig().Thresholds
	tests := []struct {
		name     string
		age      *float64
		stv      *float64
		likes    *int64
		comments *int64
		want     Category
	}{
		{"unknown age", nil, fp(10), nil, nil, CategoryNormal},
		{"unknown stv", fp(30), nil, nil, nil, CategoryNormal},
		{"exploded", fp(400), fp(0.1), Int(150_000), Int(10), CategoryAlreadyExploded},
		{"pre viral", fp(60), fp(3.5), Int(100), Int(10), CategoryPreViral},
		{"old but fast is promising", fp(200), fp(3.5), Int(100), Int(10), CategoryPromising},
		{"promising", fp(60), fp(1.5), nil, nil, CategoryPromising},
		{"underperforming", fp(60), fp(0.2), nil, nil, CategoryUnderperforming},
		{"normal", fp(60), fp(0.8), nil, nil, CategoryNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.age, tt.stv, tt.likes, tt.comments, th))
		})
	}
}
