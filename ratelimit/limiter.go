package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether the caller identified by key may proceed now.
type RateLimiter interface {
	Allow(key string) bool
}

// Memory is a process-local RateLimiter with one token bucket per key. Idle
// buckets are dropped after idleTTL.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	sweptAt time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewMemory allows perMinute requests per key with the given burst.
func NewMemory(perMinute, burst int) *Memory {
	if burst <= 0 {
		burst = 1
	}
	return &Memory{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (m *Memory) Allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.seen = now

	return b.lim.AllowN(now, 1)
}

func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.sweptAt) < m.idleTTL {
		return
	}
	for k, b := range m.buckets {
		if now.Sub(b.seen) > m.idleTTL {
			delete(m.buckets, k)
		}
	}
	m.sweptAt = now
}
