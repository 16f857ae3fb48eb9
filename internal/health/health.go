// Package health runs the readiness checks of the scouting engine.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/mobile"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Checker manages health checks for all dependencies.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  map[string]Status
	logger zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		cache:  make(map[string]Status),
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll executes all health checks concurrently and caches results.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			s := f(checkCtx)
			if s != StatusOK {
				c.logger.Warn().Str("check", n).Str("status", string(s)).Msg("Health check not ok")
			}
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()

	c.mu.Lock()
	c.cache = results
	c.mu.Unlock()

	return results
}

// Last returns the results of the previous RunAll.
func (c *Checker) Last() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

// IsReady returns true if no check is down.
func (c *Checker) IsReady(ctx context.Context) bool {
	return Ready(c.RunAll(ctx))
}

// Ready reports whether results contain no StatusDown.
func Ready(results map[string]Status) bool {
	for _, s := range results {
		if s == StatusDown {
			return false
		}
	}
	return true
}

// PingCheck maps a ping error to down.
func PingCheck(ping func() error) CheckFunc {
	return func(ctx context.Context) Status {
		if err := ping(); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// DeviceCheck reports a locked device as degraded and a disconnected one as
// down.
func DeviceCheck(probe mobile.DeviceProbe) CheckFunc {
	return func(ctx context.Context) Status {
		switch probe.Status(ctx) {
		case mobile.DeviceReady:
			return StatusOK
		case mobile.DeviceLocked:
			return StatusDegraded
		}
		return StatusDown
	}
}

// Loop is the view of a background loop that LoopCheck observes.
type Loop interface {
	IsRunning() bool
	TickCount() int
}

// LoopCheck reports a loop that is not running as down, and one whose tick
// count has not moved for longer than stall as degraded.
func LoopCheck(l Loop, stall time.Duration) CheckFunc {
	var (
		mu         sync.Mutex
		lastTicks  = -1
		lastChange time.Time
	)
	return func(ctx context.Context) Status {
		if !l.IsRunning() {
			return StatusDown
		}
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if n := l.TickCount(); n != lastTicks {
			lastTicks, lastChange = n, now
			return StatusOK
		}
		if stall > 0 && now.Sub(lastChange) > stall {
			return StatusDegraded
		}
		return StatusOK
	}
}
