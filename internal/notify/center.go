// Package notify keeps short-lived user notifications.
package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 3 * time.Second

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

type Notification struct {
	ID        string
	Level     Level
	Message   string
	ExpiresAt time.Time
}

// Config wires a Center. Sink, when set, receives every added notification.
type Config struct {
	TTL  time.Duration
	Now  func() time.Time
	Sink func(Notification)
}

// Center holds active notifications. Expiry is evaluated lazily against Now.
type Center struct {
	ttl  time.Duration
	now  func() time.Time
	sink func(Notification)

	mu    sync.Mutex
	items []Notification
}

func NewCenter(cfg Config) *Center {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Center{ttl: ttl, now: now, sink: cfg.Sink}
}

// Add records a notification and returns its id. A non-positive ttl uses
// the center default.
func (c *Center) Add(level Level, msg string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = c.ttl
	}
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   strings.TrimSpace(msg),
		ExpiresAt: c.now().Add(ttl),
	}
	c.mu.Lock()
	c.items = append(c.items, n)
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(n)
	}
	return n.ID
}

func (c *Center) Success(msg string) string { return c.Add(LevelSuccess, msg, 0) }
func (c *Center) Error(msg string) string   { return c.Add(LevelError, msg, 0) }
func (c *Center) Info(msg string) string    { return c.Add(LevelInfo, msg, 0) }
func (c *Center) Warning(msg string) string { return c.Add(LevelWarning, msg, 0) }

// Remove dismisses a notification. Unknown ids are ignored.
func (c *Center) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Active returns unexpired notifications, oldest first.
func (c *Center) Active() []Notification {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	for _, n := range c.items {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	c.items = kept
	out := make([]Notification, len(kept))
	copy(out, kept)
	return out
}

// Last returns the most recent active notification.
func (c *Center) Last() (Notification, bool) {
	active := c.Active()
	if len(active) == 0 {
		return Notification{}, false
	}
	return active[len(active)-1], true
}
