package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a fixed-window RateLimiter shared by every instance pointing at the
// same redis. It fails open: when redis is unreachable requests are allowed
// and the error is logged.
type Redis struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRedis(client *redis.Client, perWindow int, window time.Duration, logger *zap.SugaredLogger) *Redis {
	return &Redis{
		client: client,
		limit:  int64(perWindow),
		window: window,
		prefix: "ratelimit",
		logger: logger,
		now:    time.Now,
	}
}

// NewRedisFromURL parses a redis:// URL and builds the limiter on it.
func NewRedisFromURL(rawURL string, perWindow int, window time.Duration, logger *zap.SugaredLogger) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return NewRedis(redis.NewClient(opts), perWindow, window, logger), nil
}

func (r *Redis) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	slot := r.now().UnixNano() / int64(r.window)
	k := fmt.Sprintf("%s:%s:%d", r.prefix, key, slot)

	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		r.logger.Warnw("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			r.logger.Warnw("could not set rate limit window expiry", "key", k, "error", err)
		}
	}

	return n <= r.limit
}
