// Package crosstab propagates logout between client processes sharing the
// same durable storage.
//
// Only revocation travels: a process that logs in does not push others to an
// authenticated view, since stale anonymous state is harmless.
package crosstab

import (
	"context"
	"errors"
	"log/slog"

	"libraryclient/internal/util"
	"libraryclient/pkg/store"
)

// Monitor watches the token key and fires OnRevoked when another process
// clears it.
type Monitor struct {
	watcher   store.Watcher
	onRevoked func(ctx context.Context)
	logger    *slog.Logger
}

// New builds a monitor. onRevoked is typically session.Store.Invalidate.
func New(watcher store.Watcher, onRevoked func(ctx context.Context), logger *slog.Logger) (*Monitor, error) {
	if watcher == nil {
		return nil, errors.New("crosstab: watcher is required")
	}
	if onRevoked == nil {
		return nil, errors.New("crosstab: revocation callback is required")
	}
	if logger == nil {
		logger = util.Discard()
	}
	return &Monitor{watcher: watcher, onRevoked: onRevoked, logger: logger}, nil
}

// Run subscribes once and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	changes, err := m.watcher.Watch(ctx)
	if err != nil {
		return err
	}
	m.loop(ctx, changes)
	return nil
}

// Start subscribes synchronously and then watches in the background. stop
// cancels the subscription and waits for the loop to exit.
func (m *Monitor) Start(ctx context.Context) (stop func(), err error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := m.watcher.Watch(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.loop(ctx, changes)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func (m *Monitor) loop(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			m.handle(ctx, c)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, c store.Change) {
	if c.Key != store.KeyToken || !c.Removed() {
		return
	}
	m.logger.Info("session revoked by another client", "origin", c.Origin)
	m.onRevoked(ctx)
}
