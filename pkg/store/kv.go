package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Durable keys. Values are always strings.
const (
	KeyToken        = "token"
	KeyUser         = "user"
	KeyRefreshToken = "refreshToken"
	KeyTheme        = "theme"
	KeyLocale       = "locale"
)

// SessionKeys are removed together on logout.
var SessionKeys = []string{KeyToken, KeyUser, KeyRefreshToken}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

const defaultOpTimeout = 3 * time.Second

// KV is a string key-value storage tier.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Change describes a key written or removed by another store instance.
// NewValue is empty when the key was removed.
type Change struct {
	Key      string `json:"key"`
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
	Origin   string `json:"origin"`
}

// Removed reports whether the change cleared the key.
func (c Change) Removed() bool {
	return c.NewValue == ""
}

// Watcher delivers changes made by other instances sharing the same storage.
// Changes written through the watching instance itself are never delivered.
// The returned channel is closed once ctx is done.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

func newOrigin() string {
	return uuid.NewString()
}
