package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryAllow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(60, 2)
	m.now = func() time.Time { return now }

	assert.True(t, m.Allow("a"))
	assert.True(t, m.Allow("a"))
	assert.False(t, m.Allow("a"), "burst exhausted")
	assert.True(t, m.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, m.Allow("a"), "one token refilled after a second at 60/min")
	assert.False(t, m.Allow("a"))
}

func TestMemorySweepsIdleKeys(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(60, 1)
	m.now = func() time.Time { return now }

	m.Allow("a")
	require.Len(t, m.buckets, 1)

	now = now.Add(11 * time.Minute)
	m.Allow("b")
	assert.Len(t, m.buckets, 1)
	_, ok := m.buckets["b"]
	assert.True(t, ok)
}

func TestRedisAllow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRedis(client, 2, time.Minute, zap.NewNop().Sugar())
	r.now = func() time.Time { return now }

	assert.True(t, r.Allow("1.2.3.4"))
	assert.True(t, r.Allow("1.2.3.4"))
	assert.False(t, r.Allow("1.2.3.4"))
	assert.True(t, r.Allow("5.6.7.8"))

	now = now.Add(time.Minute)
	assert.True(t, r.Allow("1.2.3.4"), "new window")
}

func TestRedisFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	r := NewRedis(client, 1, time.Minute, zap.NewNop().Sugar())

	assert.True(t, r.Allow("k"))
	assert.True(t, r.Allow("k"))
}

func TestPacer(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestPacerZeroDelay(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerHonoursContext(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestHostLimiterSeparatesHosts(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, hl.WaitURL(ctx, "https://api.lever.co/v0/postings/a"))
	require.NoError(t, hl.WaitURL(ctx, "https://boards-api.greenhouse.io/v1/boards/a/jobs"))
	assert.Error(t, hl.WaitURL(ctx, "https://api.lever.co/v0/postings/b"), "second lever call must wait a full second")
}
