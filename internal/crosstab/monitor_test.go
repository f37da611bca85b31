package crosstab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"libraryclient/internal/session"
	"libraryclient/pkg/domain"
	"libraryclient/pkg/store"
)

type chanWatcher struct {
	ch chan store.Change
}

func (w *chanWatcher) Watch(ctx context.Context) (<-chan store.Change, error) {
	return w.ch, nil
}

func TestMonitorIgnoresUnrelatedKeys(t *testing.T) {
	w := &chanWatcher{ch: make(chan store.Change)}
	var mu sync.Mutex
	calls := 0
	m, err := New(w, func(context.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	stop, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	w.ch <- store.Change{Key: store.KeyTheme, OldValue: "dark"}
	w.ch <- store.Change{Key: store.KeyToken, NewValue: "fresh-login"}
	w.ch <- store.Change{Key: store.KeyUser, OldValue: "{}"}
	w.ch <- store.Change{Key: store.KeyToken, OldValue: "old"}
	close(w.ch)
	stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("revocations = %d, want 1", calls)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, func(context.Context) {}, nil); err == nil {
		t.Fatalf("expected error without watcher")
	}
	if _, err := New(&chanWatcher{}, nil, nil); err == nil {
		t.Fatalf("expected error without callback")
	}
}

// Two clients share one state directory; B logs out and A must be sent to login.
func TestCrossProcessLogoutOverFileStorage(t *testing.T) {
	dir := t.TempDir()
	kvA, err := store.NewFileKV(dir)
	if err != nil {
		t.Fatalf("kv a: %v", err)
	}
	kvB, err := store.NewFileKV(dir)
	if err != nil {
		t.Fatalf("kv b: %v", err)
	}
	runLogoutScenario(t, kvA, kvA, kvB)
}

func TestCrossProcessLogoutOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	kvA, _ := store.NewRedisKV(mr.Addr(), "", "")
	kvB, _ := store.NewRedisKV(mr.Addr(), "", "")
	defer kvA.Close()
	defer kvB.Close()
	runLogoutScenario(t, kvA, kvA, kvB)
}

func runLogoutScenario(t *testing.T, kvA store.KV, watchA store.Watcher, kvB store.KV) {
	t.Helper()
	ctx := context.Background()

	redirected := make(chan session.Reason, 4)
	a, _ := session.New(session.Config{
		Persistent: kvA,
		Navigator:  session.NavigatorFunc(func(r session.Reason) { redirected <- r }),
	})
	b, _ := session.New(session.Config{Persistent: kvB})

	if err := a.SetCredentials(ctx, domain.User{ID: 1}, mustToken(t)); err != nil {
		t.Fatalf("login a: %v", err)
	}
	if !b.Initialize(ctx).IsAuthenticated {
		t.Fatalf("tab B should pick up the shared session")
	}

	m, err := New(watchA, func(ctx context.Context) { a.Invalidate(ctx, session.ReasonRevoked) }, nil)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	stop, err := m.Start(ctx)
	if err != nil {
		t.Fatalf("start monitor: %v", err)
	}
	defer stop()

	// Unrelated key first: no session action expected.
	if err := kvB.Set(ctx, store.KeyTheme, "light"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	b.Logout(ctx)

	select {
	case r := <-redirected:
		if r != session.ReasonRevoked {
			t.Fatalf("reason = %q", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("tab A was not sent to login")
	}
	if a.Current().IsAuthenticated {
		t.Fatalf("tab A still authenticated")
	}
	select {
	case r := <-redirected:
		t.Fatalf("unexpected extra navigation: %q", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func mustToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}
