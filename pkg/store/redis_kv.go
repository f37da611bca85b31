package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "library:kv:"

// RedisKV is a persistent tier shared by every client pointed at the same
// Redis. Each write is announced on a pub/sub channel so that other
// instances can react to it.
type RedisKV struct {
	client  *redis.Client
	prefix  string
	channel string
	origin  string
}

// NewRedisKV builds a Redis-backed store. An empty prefix uses "library:kv:".
func NewRedisKV(addr, password, prefix string) (*RedisKV, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisKV{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix:  prefix,
		channel: prefix + "changes",
		origin:  newOrigin(),
	}, nil
}

// Close releases the underlying connection pool.
func (s *RedisKV) Close() error {
	return s.client.Close()
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	old, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, Change{Key: key, OldValue: old, NewValue: value, Origin: s.origin})
}

func (s *RedisKV) Remove(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	for _, key := range keys {
		old, err := s.client.Get(ctx, s.prefix+key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil && err != redis.Nil {
			return err
		}
		if err := s.publish(ctx, Change{Key: key, OldValue: old, Origin: s.origin}); err != nil {
			return err
		}
	}
	return nil
}

// Watch subscribes to the change channel. It returns once the subscription
// is confirmed by the server.
func (s *RedisKV) Watch(ctx context.Context) (<-chan Change, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					continue
				}
				if c.Origin == s.origin {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- c:
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisKV) publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}
