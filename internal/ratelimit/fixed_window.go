// Package ratelimit counts attempts per key in fixed time windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether another attempt for key fits the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// FixedWindow is a single-process limiter.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]bucket
}

type bucket struct {
	slot  int64
	count int
}

// NewFixedWindow allows limit attempts per key within each window.
func NewFixedWindow(limit int, window time.Duration, now func() time.Time) (*FixedWindow, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if now == nil {
		now = time.Now
	}
	return &FixedWindow{limit: limit, window: window, now: now, buckets: make(map[string]bucket)}, nil
}

func (l *FixedWindow) Allow(_ context.Context, key string) bool {
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	key = normalize(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[key]
	if b.slot != slot {
		b = bucket{slot: slot}
	}
	b.count++
	l.buckets[key] = b
	return b.count <= l.limit
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisFixedWindow shares its counters between processes through Redis.
type RedisFixedWindow struct {
	limit  int
	window time.Duration

	redisClient *redis.Client
	redisPrefix string
}

// NewRedisFixedWindow creates a Redis-backed limiter. An empty prefix uses
// "library:ratelimit".
func NewRedisFixedWindow(addr, password, prefix string, limit int, window time.Duration) (*RedisFixedWindow, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "library:ratelimit"
	}
	return &RedisFixedWindow{
		limit:  limit,
		window: window,
		redisClient: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		redisPrefix: prefix,
	}, nil
}

// Allow fails closed when Redis cannot be reached.
func (l *RedisFixedWindow) Allow(ctx context.Context, key string) bool {
	windowMs := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.redisPrefix, normalize(key), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.redisClient, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return res <= int64(l.limit)
}

func (l *RedisFixedWindow) Close() error {
	return l.redisClient.Close()
}

func normalize(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "unknown"
	}
	return key
}
