// Package ratelimit caps requests per client over a fixed one-minute
// window. Windows live in process memory or, when several servers share a
// Redis, in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"fintrack/internal/log"
)

const (
	window       = time.Minute
	defaultLimit = 60
	idleAfter    = 10 * time.Minute
)

// Counter records one hit for key and reports the hits so far in the
// current window and the time left until it resets.
type Counter interface {
	Hit(ctx context.Context, key string) (hits int, resetIn time.Duration, err error)
}

// MemoryCounter keeps windows in a map. Idle entries are swept by Sweep.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	last  time.Time
	hits  int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*bucket), now: time.Now}
}

func (c *MemoryCounter) Hit(_ context.Context, key string) (int, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b, ok := c.windows[key]
	if !ok || now.Sub(b.start) >= window {
		b = &bucket{start: now}
		c.windows[key] = b
	}
	b.hits++
	b.last = now
	return b.hits, window - now.Sub(b.start), nil
}

// Sweep drops clients idle for longer than ten minutes.
func (c *MemoryCounter) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-idleAfter)
	for k, b := range c.windows {
		if b.last.Before(cutoff) {
			delete(c.windows, k)
		}
	}
}

func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// RedisCounter uses INCR with a key that expires with the window.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) Hit(ctx context.Context, key string) (int, time.Duration, error) {
	k := c.prefix + key
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("count request: %w", err)
	}
	left := ttl.Val()
	if left <= 0 {
		// first hit of the window, or a key that lost its expiry
		if err := c.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire window: %w", err)
		}
		left = window
	}
	return int(incr.Val()), left, nil
}

type Config struct {
	RequestsPerMinute int
	SweepInterval     time.Duration
	// Counter defaults to a MemoryCounter.
	Counter Counter
}

// Limiter rejects a client's requests once it exceeds the per-minute limit.
type Limiter struct {
	limit    int
	counter  Counter
	memory   *MemoryCounter
	logger   *log.Logger
	rejected atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(cfg Config, logger *log.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultLimit
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	l := &Limiter{
		limit:   cfg.RequestsPerMinute,
		counter: cfg.Counter,
		logger:  logger.WithComponent(log.ComponentRateLimit),
		stop:    make(chan struct{}),
	}
	if l.counter == nil {
		l.memory = NewMemoryCounter()
		l.counter = l.memory
		go l.sweep(cfg.SweepInterval)
	}
	return l
}

// Allow records a request from client. A counter failure lets the request
// through.
func (l *Limiter) Allow(ctx context.Context, client string) (bool, time.Duration) {
	hits, resetIn, err := l.counter.Hit(ctx, client)
	if err != nil {
		l.logger.WarnContext(ctx, "Rate limit counter failed", log.FieldError, err)
		return true, 0
	}
	if hits > l.limit {
		l.rejected.Add(1)
		return false, resetIn
	}
	return true, resetIn
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.memory.Sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

type Stats struct {
	Rejected int64 `json:"rejected"`
	// Clients is -1 when windows are kept outside the process.
	Clients int `json:"clients"`
}

func (l *Limiter) Stats() Stats {
	s := Stats{Rejected: l.rejected.Load(), Clients: -1}
	if l.memory != nil {
		s.Clients = l.memory.Len()
	}
	return s
}

// Middleware answers 429 with Retry-After once clientIP(r) is over the
// limit.
func (l *Limiter) Middleware(clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			ok, resetIn := l.Allow(r.Context(), ip)
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			l.logger.WarnContext(r.Context(), "Rate limit exceeded", log.FieldClientIP, ip, log.FieldPath, r.URL.Path)
			secs := int((resetIn + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "Too many requests. Please wait a moment and try again.", http.StatusTooManyRequests)
		})
	}
}
