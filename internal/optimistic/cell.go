// Package optimistic applies local state changes ahead of remote confirmation
// and rolls them back or refetches when the remote call fails.
package optimistic

import (
	"context"
	"sync"
)

type State int

const (
	Confirmed State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "confirmed"
}

// Remote performs the mutation against the server. When ok is true the
// returned value is the server's canonical value and replaces the tentative one.
type Remote[T any] func(ctx context.Context) (value T, ok bool, err error)

// Recovery fetches the authoritative value after a failed mutation. A nil
// Recovery restores the last confirmed value.
type Recovery[T any] func(ctx context.Context) (T, error)

// Cell holds one optimistically mutated value.
//
// Every mutation takes a version. The cell remembers the newest value the
// server accepted (or that was Set) and the version it belongs to. While the
// latest mutation is in flight its tentative value is shown; once it
// completes the cell shows the confirmed value. A completion older than the
// confirmed version changes nothing, so a slow response never overwrites
// newer server state, and a failed mutation never rolls back onto another
// mutation's tentative value.
type Cell[T comparable] struct {
	mu          sync.Mutex
	value       T
	confirmed   T
	confirmedAt uint64
	version     uint64
	inflight    map[uint64]struct{}
	onChange    func(T, State)
}

func NewCell[T comparable](initial T) *Cell[T] {
	return &Cell[T]{value: initial, confirmed: initial, inflight: make(map[uint64]struct{})}
}

// OnChange registers fn to run after every visible change. fn runs without
// the cell lock held.
func (c *Cell[T]) OnChange(fn func(T, State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Cell[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// stateLocked is Pending while any in-flight mutation could still change the
// confirmed value.
func (c *Cell[T]) stateLocked() State {
	for v := range c.inflight {
		if v > c.confirmedAt {
			return Pending
		}
	}
	return Confirmed
}

// Set stores an authoritative value. In-flight mutations become stale.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	before, beforeState := c.value, c.stateLocked()
	c.version++
	c.confirmed, c.confirmedAt = v, c.version
	c.value = v
	c.unlockAndEmit(before, beforeState)
}

// SetIfIdle stores v only when no mutation is in flight.
func (c *Cell[T]) SetIfIdle(v T) bool {
	c.mu.Lock()
	if c.stateLocked() == Pending {
		c.mu.Unlock()
		return false
	}
	before, beforeState := c.value, c.stateLocked()
	c.confirmed = v
	c.value = v
	c.unlockAndEmit(before, beforeState)
	return true
}

// Mutate applies next immediately, then runs remote. On failure the cell
// falls back to the last confirmed value, or to the result of onFail when
// one is given. The remote error is returned; failed mutations are not
// retried.
func (c *Cell[T]) Mutate(ctx context.Context, next T, remote Remote[T], onFail Recovery[T]) error {
	c.mu.Lock()
	c.version++
	v := c.version
	c.inflight[v] = struct{}{}
	c.value = next
	c.mu.Unlock()
	c.emit()

	canonical, ok, err := remote(ctx)
	if err == nil {
		if ok {
			c.complete(v, canonical, true)
		} else {
			c.complete(v, next, true)
		}
		return nil
	}
	if onFail != nil {
		if fresh, rerr := onFail(ctx); rerr == nil {
			c.complete(v, fresh, true)
			return err
		}
	}
	var zero T
	c.complete(v, zero, false)
	return err
}

// complete retires mutation v. With accepted, value is server truth as of v.
func (c *Cell[T]) complete(v uint64, value T, accepted bool) {
	c.mu.Lock()
	before, beforeState := c.value, c.stateLocked()
	delete(c.inflight, v)
	if accepted && v > c.confirmedAt {
		c.confirmed, c.confirmedAt = value, v
	}
	if _, latestPending := c.inflight[c.version]; !latestPending {
		c.value = c.confirmed
	}
	c.unlockAndEmit(before, beforeState)
}

// unlockAndEmit releases the lock and notifies when the value or state moved.
func (c *Cell[T]) unlockAndEmit(before T, beforeState State) {
	changed := c.value != before || c.stateLocked() != beforeState
	c.mu.Unlock()
	if changed {
		c.emit()
	}
}

func (c *Cell[T]) emit() {
	c.mu.Lock()
	fn := c.onChange
	value, state := c.value, c.stateLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(value, state)
	}
}
