package mobile

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// SimulatedConfig tunes the simulated agent and probe.
type SimulatedConfig struct {
	Seed               int64
	OpenProbability    float64
	PoolSize           int
	CaptureFailureRate float64
	AdRate             float64
}

// DefaultSimulatedConfig mirrors a casual viewer on a mid-sized feed.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		Seed:               time.Now().UnixNano(),
		OpenProbability:    0.15,
		PoolSize:           200,
		CaptureFailureRate: 0.1,
		AdRate:             0.05,
	}
}

// Simulator is an in-process feed: it implements both MobileAgent and
// DeviceProbe over a bounded content pool so repeats happen naturally.
type Simulator struct {
	cfg SimulatedConfig
	now func() time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	sessionID string
	pool      []string
	current   string
	status    DeviceStatus
}

// NewSimulator creates a Simulator with the device reporting READY.
func NewSimulator(cfg SimulatedConfig) *Simulator {
	if cfg.PoolSize < 10 {
		cfg.PoolSize = 10
	}
	if cfg.PoolSize > 5000 {
		cfg.PoolSize = 5000
	}
	return &Simulator{
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		status: DeviceReady,
	}
}

// SetClock overrides the event timestamp source.
func (s *Simulator) SetClock(now func() time.Time) { s.now = now }

// SetStatus changes what Status reports.
func (s *Simulator) SetStatus(st DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// StartSession is idempotent for the running session id.
func (s *Simulator) StartSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == sessionID && s.pool != nil {
		return nil
	}
	s.sessionID = sessionID
	s.pool = make([]string, s.cfg.PoolSize)
	for i := range s.pool {
		s.pool[i] = fmt.Sprintf("sim_content_%d", 100000+s.rng.Intn(900000))
	}
	s.current = ""
	return nil
}

func (s *Simulator) StopSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.pool = nil
	s.current = ""
	return nil
}

func (s *Simulator) Scroll(_ context.Context) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == "" {
		return Event{}, fmt.Errorf("simulator: session not started")
	}
	s.current = s.pickLocked()
	return NewScroll(s.sessionID, s.now(), s.current), nil
}

func (s *Simulator) Pause(_ context.Context, seconds float64) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == "" {
		return Event{}, fmt.Errorf("simulator: session not started")
	}
	return NewPause(s.sessionID, s.now(), seconds), nil
}

func (s *Simulator) Open(_ context.Context) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == "" {
		return Event{}, fmt.Errorf("simulator: session not started")
	}
	if s.current == "" {
		s.current = s.pickLocked()
	}
	return NewOpen(s.sessionID, s.now(), s.current, "sim://reel/"+s.current), nil
}

// ShouldOpen draws against OpenProbability.
func (s *Simulator) ShouldOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < clampUnit(s.cfg.OpenProbability)
}

func (s *Simulator) Status(_ context.Context) DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Simulator) IsLikelyAdvertisement(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < clampUnit(s.cfg.AdRate)
}

// CaptureExternalReference returns a reel URL built from the current
// content key, or fails at CaptureFailureRate.
func (s *Simulator) CaptureExternalReference(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" || s.rng.Float64() < clampUnit(s.cfg.CaptureFailureRate) {
		return "", false
	}
	return "https://www.instagram.com/reel/" + s.current + "/", true
}

// CaptureText renders recognized text for the current content. Counters and
// age derive from the content key so repeated captures agree, with a little
// per-capture noise on the likes row.
func (s *Simulator) CaptureText(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", false
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.current))
	r := rand.New(rand.NewSource(int64(h.Sum64() >> 1)))

	likes := 50 + r.Intn(20000)
	comments := likes/20 + r.Intn(50)
	sends := likes/10 + r.Intn(100)
	saves := likes/15 + r.Intn(80)
	hours := 1 + r.Intn(47)
	likes += s.rng.Intn(3)

	return fmt.Sprintf("[OCR_RIGHT_COLUMN]\n❤️ %d\n💬 %d\n✈️ %d\n🔖 %d\n\n[OCR_BOTTOM]\nil y a %d h",
		likes, comments, sends, saves, hours), true
}

func (s *Simulator) pickLocked() string {
	if len(s.pool) == 0 {
		return fmt.Sprintf("sim_content_%d", 100000+s.rng.Intn(900000))
	}
	return s.pool[s.rng.Intn(len(s.pool))]
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
