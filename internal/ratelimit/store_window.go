package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Counters is where StoreFixedWindow keeps its buckets. The pkg/store tiers
// satisfy it.
type Counters interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// StoreFixedWindow keeps counters in a key-value store so that separate
// short-lived processes sharing the store share one quota. Updates are not
// atomic across processes; two racing attempts may both be counted once.
type StoreFixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time
	prefix string
	kv     Counters

	mu sync.Mutex
}

// NewStoreFixedWindow allows limit attempts per key within each window. An
// empty prefix uses "ratelimit:".
func NewStoreFixedWindow(kv Counters, prefix string, limit int, window time.Duration, now func() time.Time) (*StoreFixedWindow, error) {
	if kv == nil {
		return nil, errors.New("rate limiter store is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if now == nil {
		now = time.Now
	}
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &StoreFixedWindow{limit: limit, window: window, now: now, prefix: prefix, kv: kv}, nil
}

// Allow fails closed when the store cannot be read or written.
func (l *StoreFixedWindow) Allow(ctx context.Context, key string) bool {
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	storeKey := l.prefix + normalize(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	raw, ok, err := l.kv.Get(ctx, storeKey)
	if err != nil {
		return false
	}
	count := 0
	if ok {
		if s, c, valid := parseBucket(raw); valid && s == slot {
			count = c
		}
	}
	count++
	if err := l.kv.Set(ctx, storeKey, strconv.FormatInt(slot, 10)+":"+strconv.Itoa(count)); err != nil {
		return false
	}
	return count <= l.limit
}

// parseBucket reads "slot:count". Anything else counts as an empty bucket.
func parseBucket(raw string) (int64, int, bool) {
	slotPart, countPart, found := strings.Cut(raw, ":")
	if !found {
		return 0, 0, false
	}
	slot, err := strconv.ParseInt(slotPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	count, err := strconv.Atoi(countPart)
	if err != nil || count < 0 {
		return 0, 0, false
	}
	return slot, count, true
}
