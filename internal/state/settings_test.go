package state

import (
	"errors"
	"testing"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, 0.65, s.Float("score_threshold"))
	assert.Equal(t, 0.8, s.Float("scroll_pause_seconds"))
	assert.True(t, s.Bool("risk_safety_enabled"))
	assert.Equal(t, 10, s.Int("target_sent_per_session"))
	assert.Len(t, s, len(Keys()))
}

func TestEnsureDefaults(t *testing.T) {
	s := Settings{"score_threshold": 0.5}

	assert.True(t, EnsureDefaults(s))
	assert.Equal(t, 0.5, s.Float("score_threshold"))
	assert.False(t, EnsureDefaults(s))
}

func TestFloat_ClampsAndTolerates(t *testing.T) {
	s := Settings{
		"scroll_pause_seconds":    "0,01",
		"score_threshold":         float64(3),
		"loop_sleep_seconds":      "abc",
		"risk_safety_enabled":     "off",
		"target_sent_per_session": 12.6,
	}

	assert.Equal(t, 0.05, s.Float("scroll_pause_seconds"))
	assert.Equal(t, 1.0, s.Float("score_threshold"))
	assert.Equal(t, 2.0, s.Float("loop_sleep_seconds"))
	assert.False(t, s.Bool("risk_safety_enabled"))
	assert.Equal(t, 13, s.Int("target_sent_per_session"))
	assert.Equal(t, 0.0, s.Float("nope"))
}

func TestSet(t *testing.T) {
	s := Defaults()

	v, err := s.Set("scroll_pause_seconds", "20")
	require.NoError(t, err)
	assert.Equal(t, 15.0, v)

	v, err = s.Set("risk_safety_enabled", "false")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = s.Set("target_sent_per_session", "25")
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = s.Set("unknown_key", "1")
	assert.True(t, errors.Is(err, serrors.ErrInvalidSetting))

	_, err = s.Set("score_threshold", "high")
	assert.True(t, errors.Is(err, serrors.ErrInvalidSetting))
}

func TestApplyDelta(t *testing.T) {
	s := Defaults()

	v, err := s.ApplyDelta("score_threshold", 0.05)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v)
	assert.Equal(t, 0.7, s["score_threshold"])

	v, err = s.ApplyDelta("score_threshold", 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = s.ApplyDelta("risk_safety_enabled", 1)
	assert.Error(t, err)
}
