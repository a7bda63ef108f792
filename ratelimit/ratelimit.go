/*
Package ratelimit throttles actions per key over a fixed window.

PURPOSE:
  Leave submissions are limited per user. The counter lives in process by
  default; with Redis configured it is shared by every replica.

USAGE:
  l, err := ratelimit.New("10-M")                   // in memory
  l, err := ratelimit.NewRedis(ctx, "10-M", url)  // shared

  ok, err := l.Allow(ctx, "submit:"+userID)
*/
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const storePrefix = "leave-engine:ratelimit"

// Limiter decides whether one more action is allowed for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WindowLimiter is a Limiter backed by ulule/limiter.
type WindowLimiter struct {
	limiter *limiter.Limiter
	client  *redis.Client
}

// New builds an in-process limiter. rate uses the "<limit>-<period>" format,
// e.g. "10-M" for ten per minute.
func New(rate string) (*WindowLimiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: storePrefix})
	return &WindowLimiter{limiter: limiter.New(store, r)}, nil
}

// NewRedis builds a limiter whose counters live in Redis.
func NewRedis(ctx context.Context, rate, redisURL string) (*WindowLimiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: storePrefix})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis store: %w", err)
	}
	return &WindowLimiter{limiter: limiter.New(store, r), client: client}, nil
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := l.limiter.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limit lookup failed: %w", err)
	}
	return !res.Reached, nil
}

// Close releases the Redis connection, if any.
func (l *WindowLimiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
