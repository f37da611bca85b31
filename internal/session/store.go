// Package session owns the client's view of who is logged in.
//
// A Store is created once per process and passed to whatever needs it; there
// is no package-level session state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"libraryclient/internal/usertoken"
	"libraryclient/internal/util"
	"libraryclient/pkg/domain"
	"libraryclient/pkg/store"
)

// ErrEmptyToken is returned by SetCredentials for a blank credential.
var ErrEmptyToken = errors.New("session: empty token")

// Reason explains why the session was destroyed.
type Reason string

const (
	ReasonLogout       Reason = "logout"
	ReasonExpired      Reason = "expired"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonRevoked      Reason = "revoked_elsewhere"
)

// State is the lifecycle phase of a Store.
type State int

const (
	StateNew State = iota
	StateAnonymous
	StateActive
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateActive:
		return "active"
	default:
		return "new"
	}
}

// Navigator sends the user to the login view.
type Navigator interface {
	ToLogin(reason Reason)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Reason)

func (f NavigatorFunc) ToLogin(reason Reason) { f(reason) }

// Config wires a Store. Persistent is required; TabScoped defaults to an
// in-memory tier.
type Config struct {
	Persistent store.KV
	TabScoped  store.KV
	Now        func() time.Time
	Logger     *slog.Logger
	Navigator  Navigator
}

// Store is the single authoritative in-memory session, mirrored to durable storage.
type Store struct {
	persistent store.KV
	tab        store.KV
	now        func() time.Time
	logger     *slog.Logger
	nav        Navigator

	mu        sync.RWMutex
	state     State
	current   domain.Session
	navigated bool // login prompt already shown since the last active session
	listeners map[int]func(domain.Session)
	nextID    int
}

// New constructs a Store. Call Initialize before use.
func New(cfg Config) (*Store, error) {
	if cfg.Persistent == nil {
		return nil, fmt.Errorf("session: persistent storage is required")
	}
	s := &Store{
		persistent: cfg.Persistent,
		tab:        cfg.TabScoped,
		now:        cfg.Now,
		logger:     cfg.Logger,
		nav:        cfg.Navigator,
		listeners:  make(map[int]func(domain.Session)),
	}
	if s.tab == nil {
		s.tab = store.NewMemoryKV()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = util.Discard()
	}
	return s, nil
}

// Initialize rehydrates the session from durable storage. It never fails:
// storage errors and invalid tokens collapse to an anonymous session, and an
// undecodable user record degrades to an authenticated session with no user.
func (s *Store) Initialize(ctx context.Context) domain.Session {
	token, _, err := s.persistent.Get(ctx, store.KeyToken)
	if err != nil {
		s.logger.Warn("read persisted token", "err", err)
		token = ""
	}
	if !usertoken.IsValid(token, s.now()) {
		s.clearDurable(ctx)
		return s.replace(domain.Anonymous(), StateAnonymous)
	}

	var user *domain.User
	raw, ok, err := s.persistent.Get(ctx, store.KeyUser)
	switch {
	case err != nil:
		s.logger.Error("failed to read user from storage", "err", err)
	case ok && strings.TrimSpace(raw) != "":
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Error("failed to parse user from storage", "err", err, "subject", usertoken.Subject(token))
		} else {
			user = &u
		}
	}
	return s.replace(domain.Session{Token: token, User: user, IsAuthenticated: true}, StateActive)
}

// SetCredentials installs a freshly issued token. The token's expiry is not
// checked. The in-memory session is updated even if persisting fails.
func (s *Store) SetCredentials(ctx context.Context, user domain.User, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	u := user
	s.replace(domain.Session{Token: token, User: &u, IsAuthenticated: true}, StateActive)

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.persistent.Set(ctx, store.KeyToken, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if err := s.persistent.Set(ctx, store.KeyUser, string(data)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	s.logger.Info("session established", "user_id", user.ID, "token", usertoken.Redact(token))
	return nil
}

// UpdateUser replaces the identity record of an active session, e.g. after a
// profile edit. It is a no-op when anonymous.
func (s *Store) UpdateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	if !s.current.IsAuthenticated {
		s.mu.Unlock()
		return nil
	}
	u := user
	s.current.User = &u
	snapshot := s.current
	s.mu.Unlock()
	s.emit(snapshot)

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return s.persistent.Set(ctx, store.KeyUser, string(data))
}

// Logout clears the in-memory session and every session key in both tiers.
// It is idempotent.
func (s *Store) Logout(ctx context.Context) {
	s.replace(domain.Anonymous(), StateAnonymous)
	s.clearDurable(ctx)
}

// Invalidate is the destroy path for expiry, 401 responses and revocation
// observed from another process. It logs out and sends the user to login.
//
// Only one navigation happens per ended session, however many concurrent
// failures report it. While anonymous, a revocation never navigates and
// other reasons navigate once until the next login.
func (s *Store) Invalidate(ctx context.Context, reason Reason) {
	s.mu.Lock()
	wasActive := s.current.IsAuthenticated
	navigate := wasActive || (reason != ReasonRevoked && !s.navigated)
	if navigate {
		s.navigated = true
	}
	changed := s.setLocked(domain.Anonymous(), StateAnonymous)
	s.mu.Unlock()
	if changed {
		s.emit(domain.Anonymous())
	}
	s.clearDurable(ctx)
	s.logger.Warn("session invalidated", "reason", string(reason), "was_active", wasActive)
	if navigate && s.nav != nil {
		s.nav.ToLogin(reason)
	}
}

// Current returns a copy of the session.
func (s *Store) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out
}

// State returns the lifecycle phase.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the bearer credential for outgoing requests, or "" when
// anonymous. A token found expired at this point invalidates the session.
func (s *Store) Token(ctx context.Context) string {
	cur := s.Current()
	if !cur.IsAuthenticated {
		return ""
	}
	if !usertoken.IsValid(cur.Token, s.now()) {
		s.Invalidate(ctx, ReasonExpired)
		return ""
	}
	return cur.Token
}

// OnChange registers fn to observe every session replacement.
func (s *Store) OnChange(fn func(domain.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) replace(next domain.Session, state State) domain.Session {
	s.mu.Lock()
	changed := s.setLocked(next, state)
	s.mu.Unlock()
	if changed {
		s.emit(next)
	}
	return next
}

func (s *Store) setLocked(next domain.Session, state State) bool {
	changed := s.current.IsAuthenticated != next.IsAuthenticated || s.current.Token != next.Token || s.state != state
	s.current = next
	s.state = state
	if next.IsAuthenticated {
		s.navigated = false
	}
	return changed
}

func (s *Store) emit(sess domain.Session) {
	s.mu.RLock()
	fns := make([]func(domain.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(sess)
	}
}

func (s *Store) clearDurable(ctx context.Context) {
	for _, tier := range []store.KV{s.persistent, s.tab} {
		if err := tier.Remove(ctx, store.SessionKeys...); err != nil {
			s.logger.Warn("clear session keys", "err", err)
		}
	}
}
