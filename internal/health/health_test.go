package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/reel-scout/internal/mobile"
)

type fakeProbe struct{ status mobile.DeviceStatus }

func (f fakeProbe) Status(context.Context) mobile.DeviceStatus              { return f.status }
func (f fakeProbe) IsLikelyAdvertisement(context.Context) bool              { return false }
func (f fakeProbe) CaptureExternalReference(context.Context) (string, bool) { return "", false }

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("state_store", func(ctx context.Context) Status { return StatusOK })
	c.Register("device", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Len(t, c.Last(), 2)
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("state_store", func(ctx context.Context) Status { return StatusOK })
	c.Register("device", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
	assert.Equal(t, StatusDown, c.Last()["device"])
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("device", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestPingCheck(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusOK, PingCheck(func() error { return nil })(ctx))
	assert.Equal(t, StatusDown, PingCheck(func() error { return errors.New("gone") })(ctx))
}

func TestDeviceCheck(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusOK, DeviceCheck(fakeProbe{mobile.DeviceReady})(ctx))
	assert.Equal(t, StatusDegraded, DeviceCheck(fakeProbe{mobile.DeviceLocked})(ctx))
	assert.Equal(t, StatusDown, DeviceCheck(fakeProbe{mobile.DeviceDisconnected})(ctx))
}

type fakeLoop struct {
	running atomic.Bool
	ticks   atomic.Int64
}

func (l *fakeLoop) IsRunning() bool { return l.running.Load() }
func (l *fakeLoop) TickCount() int  { return int(l.ticks.Load()) }

func TestLoopCheck(t *testing.T) {
	ctx := context.Background()
	loop := &fakeLoop{}
	check := LoopCheck(loop, 20*time.Millisecond)

	assert.Equal(t, StatusDown, check(ctx))

	loop.running.Store(true)
	assert.Equal(t, StatusOK, check(ctx))
	assert.Equal(t, StatusOK, check(ctx), "within the stall window")

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StatusDegraded, check(ctx))

	loop.ticks.Add(1)
	assert.Equal(t, StatusOK, check(ctx))
}
