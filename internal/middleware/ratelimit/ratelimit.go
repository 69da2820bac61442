package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Limiter throttles query and indexing traffic per client: one token
// bucket per caller, keyed by the X-User-ID header when present and the
// remote IP otherwise. Idle buckets are dropped by a background sweep.
type Limiter struct {
	requestsPerMinute int
	window            time.Duration
	logger            *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
	done    chan struct{}
}

type client struct {
	tokens   float64
	lastSeen time.Time
}

type Config struct {
	// RequestsPerMinute caps a single caller's rate. Zero means the
	// default of 60.
	RequestsPerMinute int
	Window            time.Duration
	Logger            *zap.Logger
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Limiter{
		requestsPerMinute: cfg.RequestsPerMinute,
		window:            cfg.Window,
		logger:            cfg.Logger,
		clients:           make(map[string]*client),
		done:              make(chan struct{}),
	}

	go l.sweep()

	return l
}

func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}

		if !l.allow(key, time.Now()) {
			l.logger.Warn("Rate limit exceeded",
				zap.String("client", key),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (l *Limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[key]
	if !ok {
		cl = &client{tokens: float64(l.requestsPerMinute)}
		l.clients[key] = cl
	} else {
		elapsed := now.Sub(cl.lastSeen)
		refill := elapsed.Seconds() / l.window.Seconds() * float64(l.requestsPerMinute)
		cl.tokens += refill
		if cl.tokens > float64(l.requestsPerMinute) {
			cl.tokens = float64(l.requestsPerMinute)
		}
	}
	cl.lastSeen = now

	if cl.tokens < 1 {
		return false
	}
	cl.tokens--
	return true
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			l.mu.Lock()
			for key, cl := range l.clients {
				if cl.lastSeen.Before(cutoff) {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) Stop() {
	close(l.done)
}
