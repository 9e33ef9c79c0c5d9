package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL is how long an idle client's limiter is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the default per-IP limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		IdleTTL:           10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client IP.
type limiterSet struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig, now func() time.Time) *limiterSet {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &limiterSet{cfg: cfg, now: now, clients: make(map[string]*client), lastSweep: now()}
}

func (s *limiterSet) allow(ip string) bool {
	now := s.now()

	s.mu.Lock()
	if now.Sub(s.lastSweep) >= s.cfg.IdleTTL {
		for key, c := range s.clients {
			if now.Sub(c.lastSeen) >= s.cfg.IdleTTL {
				delete(s.clients, key)
			}
		}
		s.lastSweep = now
	}
	c, ok := s.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.clients[ip] = c
	}
	c.lastSeen = now
	s.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg, time.Now)

	return func(c *gin.Context) {
		if !set.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
