package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"libraryclient/pkg/domain"
	"libraryclient/pkg/store"
)

func mustToken(t *testing.T, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}
func (failingKV) Set(context.Context, string, string) error { return errors.New("disk on fire") }
func (failingKV) Remove(context.Context, ...string) error   { return errors.New("disk on fire") }

func newStore(t *testing.T, persistent, tab store.KV, nav Navigator) *Store {
	t.Helper()
	s, err := New(Config{Persistent: persistent, TabScoped: tab, Navigator: nav})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestNewRequiresPersistentTier(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without persistent storage")
	}
}

func TestInitializeNeverFails(t *testing.T) {
	ctx := context.Background()
	live := mustToken(t, time.Now().Add(time.Hour))
	expired := mustToken(t, time.Now().Add(-time.Second))
	tokens := map[string]*string{
		"absent":    nil,
		"valid":     &live,
		"expired":   &expired,
		"malformed": ptr("not.a-token"),
	}
	users := map[string]*string{
		"absent":  nil,
		"present": ptr(`{"id":7,"email":"a@b.c","role":"MEMBER"}`),
		"corrupt": ptr(`{"id":`),
	}

	for tn, tok := range tokens {
		for un, usr := range users {
			persistent := store.NewMemoryKV()
			tab := store.NewMemoryKV()
			if tok != nil {
				_ = persistent.Set(ctx, store.KeyToken, *tok)
			}
			if usr != nil {
				_ = persistent.Set(ctx, store.KeyUser, *usr)
			}
			_ = tab.Set(ctx, store.KeyRefreshToken, "r")

			sess := newStore(t, persistent, tab, nil).Initialize(ctx)

			wantAuth := tn == "valid"
			if sess.IsAuthenticated != wantAuth {
				t.Fatalf("token=%s user=%s: authenticated=%v, want %v", tn, un, sess.IsAuthenticated, wantAuth)
			}
			if !wantAuth {
				if sess.Token != "" || sess.User != nil {
					t.Fatalf("token=%s user=%s: anonymous session carries data: %+v", tn, un, sess)
				}
				if persistent.Len() != 0 || tab.Len() != 0 {
					t.Fatalf("token=%s user=%s: durable remnants not cleared", tn, un)
				}
				continue
			}
			if un == "present" && (sess.User == nil || sess.User.ID != 7) {
				t.Fatalf("user=%s: expected decoded user, got %+v", un, sess.User)
			}
			if un != "present" && sess.User != nil {
				t.Fatalf("user=%s: expected nil user, got %+v", un, sess.User)
			}
		}
	}
}

func TestInitializeStorageErrorIsAnonymous(t *testing.T) {
	s := newStore(t, failingKV{}, failingKV{}, nil)
	sess := s.Initialize(context.Background())
	if sess.IsAuthenticated {
		t.Fatalf("storage failure must not authenticate")
	}
	if s.State() != StateAnonymous {
		t.Fatalf("state = %v, want anonymous", s.State())
	}
}

func TestSetCredentialsPersistsWithoutExpiryCheck(t *testing.T) {
	ctx := context.Background()
	persistent := store.NewMemoryKV()
	s := newStore(t, persistent, nil, nil)
	s.Initialize(ctx)

	if err := s.SetCredentials(ctx, domain.User{ID: 1}, ""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}

	opaque := "opaque-server-token"
	if err := s.SetCredentials(ctx, domain.User{ID: 3, Email: "x@y.z", Role: domain.RoleAdmin}, opaque); err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	cur := s.Current()
	if !cur.IsAuthenticated || cur.Token != opaque || cur.User.Role != domain.RoleAdmin {
		t.Fatalf("unexpected session: %+v", cur)
	}
	if v, _, _ := persistent.Get(ctx, store.KeyToken); v != opaque {
		t.Fatalf("persisted token = %q", v)
	}
	if v, _, _ := persistent.Get(ctx, store.KeyUser); v == "" {
		t.Fatalf("user not persisted")
	}
	if s.State() != StateActive {
		t.Fatalf("state = %v, want active", s.State())
	}
}

func TestLogoutIsIdempotentAndTotal(t *testing.T) {
	ctx := context.Background()
	persistent := store.NewMemoryKV()
	tab := store.NewMemoryKV()
	s := newStore(t, persistent, tab, nil)
	if err := s.SetCredentials(ctx, domain.User{ID: 1}, mustToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	_ = persistent.Set(ctx, store.KeyRefreshToken, "r")
	_ = tab.Set(ctx, store.KeyToken, "tab-copy")
	_ = persistent.Set(ctx, store.KeyTheme, "dark")

	s.Logout(ctx)
	s.Logout(ctx)

	for _, k := range store.SessionKeys {
		if _, ok, _ := persistent.Get(ctx, k); ok {
			t.Fatalf("persistent %q survived logout", k)
		}
		if _, ok, _ := tab.Get(ctx, k); ok {
			t.Fatalf("tab %q survived logout", k)
		}
	}
	if v, _, _ := persistent.Get(ctx, store.KeyTheme); v != "dark" {
		t.Fatalf("logout must not touch non-session keys")
	}
	if s.Current().IsAuthenticated {
		t.Fatalf("still authenticated after logout")
	}
}

func TestTokenInvalidatesExpiredSession(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	var reasons []Reason
	s, err := New(Config{
		Persistent: store.NewMemoryKV(),
		Now:        func() time.Time { return now },
		Navigator:  NavigatorFunc(func(r Reason) { reasons = append(reasons, r) }),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok := mustToken(t, now.Add(time.Minute))
	if err := s.SetCredentials(ctx, domain.User{ID: 1}, tok); err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	if got := s.Token(ctx); got != tok {
		t.Fatalf("token = %q", got)
	}

	now = now.Add(2 * time.Minute)
	if got := s.Token(ctx); got != "" {
		t.Fatalf("expired token returned: %q", got)
	}
	if s.Current().IsAuthenticated {
		t.Fatalf("session should be destroyed")
	}
	if len(reasons) != 1 || reasons[0] != ReasonExpired {
		t.Fatalf("navigations = %v", reasons)
	}
}

func TestRevokedWhileAnonymousDoesNotNavigate(t *testing.T) {
	ctx := context.Background()
	var reasons []Reason
	s, err := New(Config{
		Persistent: store.NewMemoryKV(),
		Navigator:  NavigatorFunc(func(r Reason) { reasons = append(reasons, r) }),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Initialize(ctx)
	s.Invalidate(ctx, ReasonRevoked)
	if len(reasons) != 0 {
		t.Fatalf("navigations = %v", reasons)
	}
	s.Invalidate(ctx, ReasonUnauthorized)
	if len(reasons) != 1 || reasons[0] != ReasonUnauthorized {
		t.Fatalf("navigations = %v", reasons)
	}
}

func TestOnChangeObservesTransitions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, store.NewMemoryKV(), nil, nil)
	var seen []bool
	unsubscribe := s.OnChange(func(sess domain.Session) { seen = append(seen, sess.IsAuthenticated) })

	s.Initialize(ctx)
	_ = s.SetCredentials(ctx, domain.User{ID: 1}, "t")
	s.Logout(ctx)
	s.Logout(ctx)
	unsubscribe()
	_ = s.SetCredentials(ctx, domain.User{ID: 1}, "t")

	want := []bool{false, true, false}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestUpdateUserKeepsToken(t *testing.T) {
	ctx := context.Background()
	persistent := store.NewMemoryKV()
	s := newStore(t, persistent, nil, nil)
	_ = s.SetCredentials(ctx, domain.User{ID: 1, Name: "old"}, "tok")
	if err := s.UpdateUser(ctx, domain.User{ID: 1, Name: "new"}); err != nil {
		t.Fatalf("update user: %v", err)
	}
	if cur := s.Current(); cur.Token != "tok" || cur.User.Name != "new" {
		t.Fatalf("unexpected session: %+v", cur)
	}
}

func ptr(s string) *string { return &s }

func TestConcurrentUnauthorizedNavigatesOnce(t *testing.T) {
	ctx := context.Background()
	var navigations atomic.Int32
	s := newStore(t, store.NewMemoryKV(), nil, NavigatorFunc(func(Reason) { navigations.Add(1) }))
	user := domain.User{ID: 7, Email: "ada@example.com", Role: domain.RoleMember}
	if err := s.SetCredentials(ctx, user, mustToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("set credentials: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Invalidate(ctx, ReasonUnauthorized)
		}()
	}
	wg.Wait()
	if n := navigations.Load(); n != 1 {
		t.Fatalf("navigations = %d, want 1", n)
	}
	s.Invalidate(ctx, ReasonUnauthorized)
	if n := navigations.Load(); n != 1 {
		t.Fatalf("a later 401 in the same logged-out spell navigated again: %d", n)
	}

	if err := s.SetCredentials(ctx, user, mustToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	s.Invalidate(ctx, ReasonExpired)
	if n := navigations.Load(); n != 2 {
		t.Fatalf("navigations after second session = %d, want 2", n)
	}
}
