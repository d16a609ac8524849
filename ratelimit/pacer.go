package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces successive calls at least delay apart. The first call never
// waits. A zero delay disables pacing.
type Pacer struct {
	lim *rate.Limiter
}

func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(delay), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}

// HostLimiter rate-limits outbound requests per hostname (api.lever.co,
// boards-api.greenhouse.io, ...).
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(reqPerSec),
		b: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}
