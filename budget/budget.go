// Package budget bounds how much work one cron invocation performs.
//
// A Budget is checked once per unit of work. Running out of budget is not a
// failure: callers stop taking new work and report that more remains.
package budget

import (
	"context"
	"time"
)

// DefaultReserve is kept back from the ceiling so the last unit of work and
// the response can finish before the hosting platform cuts the request.
const DefaultReserve = 2 * time.Second

type Budget struct {
	start   time.Time
	ceiling time.Duration
	reserve time.Duration
	now     func() time.Time
}

type Option func(*Budget)

func WithReserve(d time.Duration) Option {
	return func(b *Budget) { b.reserve = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Budget) { b.now = now }
}

func New(ceiling time.Duration, opts ...Option) *Budget {
	b := &Budget{
		ceiling: ceiling,
		reserve: DefaultReserve,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.reserve >= ceiling {
		b.reserve = ceiling / 10
	}
	b.start = b.now()

	return b
}

// Remaining is the time left before the ceiling, never negative.
func (b *Budget) Remaining() time.Duration {
	left := b.ceiling - b.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Exhausted reports whether starting another unit of work would eat into the
// reserve.
func (b *Budget) Exhausted() bool {
	return b.Remaining() <= b.reserve
}

// Context derives a context that expires when the budget does.
func (b *Budget) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.Remaining())
}
