package ageapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/reel-scout/internal/retry"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/age", time.Second, zerolog.Nop(),
		WithClock(func() time.Time { return now }),
		WithRetry(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	require.NoError(t, err)
	return c, &calls
}

func TestPublishedAt_AgeSecondsIsCached(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.instagram.com/reel/Cabc123/", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"age_seconds": 2700}`))
	})

	for i := 0; i < 3; i++ {
		got, ok, err := c.PublishedAt(context.Background(), "https://www.instagram.com/reel/Cabc123/")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, now.Add(-45*time.Minute), got)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublishedAt_CreatedAt(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"created_at": "2025-03-14T10:00:00Z"}`))
	})

	got, ok, err := c.PublishedAt(context.Background(), "ref")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), got.UTC())
}

func TestPublishedAt_NoAnswer(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, ok, err := c.PublishedAt(context.Background(), "ref")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.PublishedAt(context.Background(), "")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishedAt_RetriesServerErrors(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := c.PublishedAt(context.Background(), "ref")
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_RejectsEmptyEndpoint(t *testing.T) {
	_, err := New("", time.Second, zerolog.Nop())
	assert.Error(t, err)
}

func TestEnricher_InjectsAge(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"created_at": "2025-03-14T11:15:00Z"}`))
	})
	it := &state.Item{
		ID:          "vid_1",
		ExternalRef: "https://www.instagram.com/reel/Cabc123/",
		ObservedAt:  now,
		Meta: map[string]any{
			temporal.MetaOCRMetrics: map[string]any{"likes": 4500.0, "comments": 120.0, "shares": 60.0},
		},
	}

	a := NewEnricher(c, zerolog.Nop()).Analyze(context.Background(), it, state.Defaults())

	require.NotNil(t, a.AgeMinutes)
	assert.InDelta(t, 45, *a.AgeMinutes, 1e-9)
	require.NotNil(t, a.STV)
	assert.NotContains(t, it.Meta, temporal.MetaAgeSeconds)
}

func TestEnricher_WithoutClient(t *testing.T) {
	it := &state.Item{ID: "vid_1", ObservedAt: now, Meta: map[string]any{temporal.MetaOCRText: "il y a 45 min"}}

	a := NewEnricher(nil, zerolog.Nop()).Analyze(context.Background(), it, state.Defaults())

	require.NotNil(t, a.AgeMinutes)
	assert.InDelta(t, 45, *a.AgeMinutes, 1e-9)
	assert.Nil(t, a.STV)
}
