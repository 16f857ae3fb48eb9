package mgmt

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RPS   int // requests per second
	Burst int // burst size
}

// maxClients bounds the number of tracked client limiters.
const maxClients = 4096

type rateLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	clients, _ := lru.New[string, *rate.Limiter](maxClients)
	burst := cfg.Burst
	if burst < 1 {
		burst = cfg.RPS
	}
	return &rateLimiter{clients: clients, limit: rate.Limit(cfg.RPS), burst: burst}
}

func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	lim, ok := rl.clients.Get(client)
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.clients.Add(client, lim)
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// NewRateLimitMiddleware returns a per-client token-bucket rate limiter.
// Least recently seen clients are evicted once maxClients is reached.
func NewRateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	rl := newRateLimiter(cfg)
	return func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}
		if !rl.allow(c.IP()) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}
