package cli

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"libraryclient/internal/apitest"
	"libraryclient/internal/ratelimit"
	"libraryclient/internal/views"
	"libraryclient/pkg/domain"
)

type env struct {
	srv    *apitest.Server
	config string
	dir    string
}

func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	for _, key := range []string{"LIBRARY_API_URL", "LIBRARY_TIMEOUT", "LIBRARY_LOG_LEVEL", "LIBRARY_LOG_FORMAT",
		"LIBRARY_STORAGE", "LIBRARY_STATE_DIR", "LIBRARY_REDIS_PREFIX", "REDIS_ADDR", "REDIS_PASSWORD", "LIBRARY_LOGIN_LIMIT", "LIBRARY_LOGIN_WINDOW"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfg := "stateDir: " + filepath.Join(dir, "state") + "\nlogLevel: error\n" + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &env{srv: apitest.New(t), config: path, dir: dir}
}

// run executes one CLI invocation and returns stdout and stderr separately.
func (e *env) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.config, "--api-url", e.srv.URL()}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func (e *env) login(t *testing.T, email, password string) {
	t.Helper()
	if _, stderr, err := e.run(t, "", "login", "--email", email, "--password", password); err != nil {
		t.Fatalf("login: %v\nstderr: %s", err, stderr)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)

	out, _, err := e.run(t, "", "login", "--email", "ada@example.com", "--password", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as Ada (MEMBER)") {
		t.Fatalf("login output = %q", out)
	}

	out, _, err = e.run(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "Ada <ada@example.com>") || !strings.Contains(out, "Role: MEMBER") || !strings.Contains(out, "Expires: ") {
		t.Fatalf("whoami output = %q", out)
	}

	if _, _, err := e.run(t, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := e.run(t, "", "whoami"); !errors.Is(err, views.ErrLoginRequired) {
		t.Fatalf("whoami after logout err = %v", err)
	}
}

func TestLoginStoresRefreshToken(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	data, err := os.ReadFile(filepath.Join(e.dir, "state", "state.json"))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	for _, key := range []string{`"token"`, `"user"`, `"refreshToken"`} {
		if !bytes.Contains(data, []byte(key)) {
			t.Fatalf("state file missing %s: %s", key, data)
		}
	}
}

func TestLoginPromptsForPassword(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)

	_, stderr, err := e.run(t, "secret\n", "login", "--email", "ada@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(stderr, "Password:") {
		t.Fatalf("expected a password prompt, stderr = %q", stderr)
	}
}

func TestLoginRejectedLeavesNoSession(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)

	_, stderr, err := e.run(t, "", "login", "--email", "ada@example.com", "--password", "wrong")
	if err == nil || !strings.Contains(err.Error(), "Invalid credentials") {
		t.Fatalf("login err = %v", err)
	}
	if strings.Contains(stderr, "Session ended") {
		t.Fatalf("login failure should not print the login hint: %q", stderr)
	}
	if _, _, err := e.run(t, "", "whoami"); !errors.Is(err, views.ErrLoginRequired) {
		t.Fatalf("whoami err = %v", err)
	}
}

func TestLoginThrottled(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	limiter, err := ratelimit.NewFixedWindow(1, time.Hour, nil)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	e.srv.LimitLogins(limiter)

	e.login(t, "ada@example.com", "secret")
	_, _, err = e.run(t, "", "login", "--email", "ada@example.com", "--password", "secret")
	if err == nil || !strings.Contains(err.Error(), "Too many login attempts") {
		t.Fatalf("second login err = %v", err)
	}
	if _, _, err := e.run(t, "", "whoami"); err != nil {
		t.Fatalf("throttled login should keep the existing session: %v", err)
	}
}

func TestLoginThrottledLocally(t *testing.T) {
	e := newEnv(t, "loginLimit: 1\nloginWindow: 1h\n")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	_, _, err := e.run(t, "", "login", "--email", "ADA@example.com", "--password", "secret")
	if !errors.Is(err, errLoginThrottled) {
		t.Fatalf("second login err = %v", err)
	}
	if n := e.srv.Hits(http.MethodPost, "/auth/login"); n != 1 {
		t.Fatalf("login requests = %d, want 1", n)
	}
	if _, _, err := e.run(t, "", "whoami"); err != nil {
		t.Fatalf("throttled login should keep the existing session: %v", err)
	}
}

func TestLoginThrottleSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newEnv(t, "storage: redis\nredisAddr: "+mr.Addr()+"\nredisPrefix: \"cli:\"\nloginLimit: 1\n")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	if _, _, err := e.run(t, "", "login", "--email", "ada@example.com", "--password", "secret"); !errors.Is(err, errLoginThrottled) {
		t.Fatalf("second login err = %v", err)
	}
	var found bool
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "cli:ratelimit:login:ada@example.com:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no login counter in redis: %v", mr.Keys())
	}
}

func TestFailingCommandClosesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newEnv(t, "storage: redis\nredisAddr: "+mr.Addr()+"\n")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	if _, _, err := e.run(t, "", "books", "show", "424242"); err == nil {
		t.Fatalf("expected missing book to fail")
	}
	deadline := time.Now().Add(3 * time.Second)
	for mr.CurrentConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("redis connections left open: %d", mr.CurrentConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBooksListPages(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddBooks("Novel", 25)

	out, _, err := e.run(t, "", "books", "list")
	if err != nil {
		t.Fatalf("books list: %v", err)
	}
	if !strings.Contains(out, "(20 shown, use --pages 2 for more)") || strings.Contains(out, "Novel 1 ") {
		t.Fatalf("first page output = %q", out)
	}

	out, _, err = e.run(t, "", "books", "list", "--pages", "2")
	if err != nil {
		t.Fatalf("books list: %v", err)
	}
	if strings.Contains(out, "shown") || !strings.Contains(out, "Novel 1 ") {
		t.Fatalf("two-page output = %q", out)
	}
}

func TestBooksShowAnonymous(t *testing.T) {
	e := newEnv(t, "")
	u := e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert", Description: "Spice."})
	e.srv.AddReview(u.ID, b.ID, 4, "Great world building")

	out, _, err := e.run(t, "", "books", "show", idString(b.ID))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Dune", "by Frank Herbert", "Spice.", "****.", "Great world building"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "Favorite:") {
		t.Fatalf("anonymous view should not show favorite state: %q", out)
	}
}

func TestBooksSuggestFromStdin(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	e.srv.AddBook(domain.Book{Title: "Emma", Author: "Jane Austen"})

	out, _, err := e.run(t, "du\ndun\nemma\n", "books", "suggest")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !strings.Contains(out, "Emma - Jane Austen") || strings.Contains(out, "Dune") {
		t.Fatalf("only the last query should be looked up, got %q", out)
	}
	if n := e.srv.Hits(http.MethodGet, "/books"); n != 1 {
		t.Fatalf("book searches = %d, want 1", n)
	}
}

func TestFavoritesToggleAndList(t *testing.T) {
	e := newEnv(t, "")
	u := e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	e.login(t, "ada@example.com", "secret")

	out, stderr, err := e.run(t, "", "favorites", "toggle", idString(b.ID))
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !strings.Contains(out, "favorite=true") || !strings.Contains(stderr, "Added to favorites") {
		t.Fatalf("toggle output = %q / %q", out, stderr)
	}
	if ids := e.srv.Favorites(u.ID); len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("server favorites = %v", ids)
	}

	out, _, err = e.run(t, "", "favorites", "list")
	if err != nil {
		t.Fatalf("favorites list: %v", err)
	}
	if !strings.Contains(out, "Dune") {
		t.Fatalf("favorites list = %q", out)
	}

	out, _, err = e.run(t, "", "favorites", "list", "--ids")
	if err != nil {
		t.Fatalf("favorites ids: %v", err)
	}
	if strings.TrimSpace(out) != idString(b.ID) {
		t.Fatalf("favorite ids = %q", out)
	}
}

func TestRequestIDFlag(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	var (
		mu  sync.Mutex
		ids []string
	)
	e.srv.OnRequest(func(r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-Id"))
		mu.Unlock()
	})

	if _, _, err := e.run(t, "", "--request-id", "trace-42", "books", "list"); err != nil {
		t.Fatalf("books list: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ids) == 0 {
		t.Fatalf("no requests seen")
	}
	for _, id := range ids {
		if id != "trace-42" {
			t.Fatalf("request ids = %v", ids)
		}
	}
}

func TestReviewShow(t *testing.T) {
	e := newEnv(t, "")
	u := e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	r := e.srv.AddReview(u.ID, b.ID, 4, "Sandy.")

	out, _, err := e.run(t, "", "reviews", "show", idString(b.ID), idString(r.ID))
	if err != nil {
		t.Fatalf("review show: %v", err)
	}
	if !strings.Contains(out, "Sandy.") {
		t.Fatalf("review show = %q", out)
	}
}

func TestBooksUpdateNeedsCatalogRole(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.srv.AddUser("lib@example.com", "shelf", "Lib", domain.RoleLibrarian)
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})

	e.login(t, "ada@example.com", "secret")
	if _, _, err := e.run(t, "", "books", "update", idString(b.ID), "--title", "Emma"); !errors.Is(err, views.ErrCatalogRole) {
		t.Fatalf("member update err = %v", err)
	}
	if n := e.srv.Hits(http.MethodPut, "/books/"+idString(b.ID)); n != 0 {
		t.Fatalf("member update reached the API %d times", n)
	}

	e.login(t, "lib@example.com", "shelf")
	out, _, err := e.run(t, "", "books", "update", idString(b.ID), "--title", "Dune Messiah")
	if err != nil {
		t.Fatalf("librarian update: %v", err)
	}
	if !strings.Contains(out, "Dune Messiah - Frank Herbert") {
		t.Fatalf("update output = %q", out)
	}
}

func TestFavoriteToggleRequiresLogin(t *testing.T) {
	e := newEnv(t, "")
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	if _, _, err := e.run(t, "", "favorites", "toggle", idString(b.ID)); !errors.Is(err, views.ErrLoginRequired) {
		t.Fatalf("toggle err = %v", err)
	}
	if n := e.srv.Hits(http.MethodPost, "/favorites/"+idString(b.ID)); n != 0 {
		t.Fatalf("anonymous toggle reached the server %d times", n)
	}
}

func TestLibrarySetAndList(t *testing.T) {
	e := newEnv(t, "")
	u := e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	e.login(t, "ada@example.com", "secret")

	if _, _, err := e.run(t, "", "library", "set", idString(b.ID), "reading"); err != nil {
		t.Fatalf("library set: %v", err)
	}
	if st, ok := e.srv.Status(u.ID, b.ID); !ok || st != domain.StatusReading {
		t.Fatalf("server status = %q,%v", st, ok)
	}
	out, _, err := e.run(t, "", "library", "list", "--status", "READING")
	if err != nil {
		t.Fatalf("library list: %v", err)
	}
	if !strings.Contains(out, "READING") || !strings.Contains(out, "Dune") {
		t.Fatalf("library list = %q", out)
	}
	if _, _, err := e.run(t, "", "library", "set", idString(b.ID), "skimming"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestReviewRequiresRating(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	b := e.srv.AddBook(domain.Book{Title: "Dune", Author: "Frank Herbert"})
	e.login(t, "ada@example.com", "secret")

	_, stderr, err := e.run(t, "", "reviews", "add", idString(b.ID), "--content", "nice")
	if !errors.Is(err, views.ErrRatingRequired) {
		t.Fatalf("review err = %v", err)
	}
	if !strings.Contains(stderr, "Please select a rating!") {
		t.Fatalf("stderr = %q", stderr)
	}

	out, _, err := e.run(t, "", "reviews", "add", idString(b.ID), "--rating", "5", "--content", "nice")
	if err != nil {
		t.Fatalf("review add: %v", err)
	}
	if !strings.Contains(out, "Created review") {
		t.Fatalf("review add output = %q", out)
	}
	out, _, err = e.run(t, "", "reviews", "mine")
	if err != nil {
		t.Fatalf("reviews mine: %v", err)
	}
	if !strings.Contains(out, "nice") {
		t.Fatalf("reviews mine = %q", out)
	}
}

func TestUnauthorizedResponseEndsSession(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	e.srv.Fail(http.MethodGet, "/favorites", http.StatusUnauthorized)
	_, stderr, err := e.run(t, "", "favorites", "list")
	if err == nil {
		t.Fatalf("expected favorites list to fail")
	}
	if !strings.Contains(stderr, "Session ended (unauthorized)") {
		t.Fatalf("stderr = %q", stderr)
	}
	if _, _, err := e.run(t, "", "whoami"); !errors.Is(err, views.ErrLoginRequired) {
		t.Fatalf("whoami after 401 err = %v", err)
	}
}

func TestParallelUnauthorizedPrintsOneLoginHint(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	for i := 0; i < 3; i++ {
		e.srv.Fail(http.MethodGet, "/books", http.StatusUnauthorized)
	}
	e.srv.Fail(http.MethodGet, "/favorites", http.StatusUnauthorized)
	e.srv.Fail(http.MethodGet, "/categories", http.StatusUnauthorized)

	_, stderr, err := e.run(t, "", "dashboard")
	if !errors.Is(err, views.ErrSessionExpired) {
		t.Fatalf("dashboard err = %v", err)
	}
	if n := strings.Count(stderr, "Session ended"); n != 1 {
		t.Fatalf("login hint printed %d times:\n%s", n, stderr)
	}
}

func TestAdminCommands(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("admin@example.com", "root", "Admin", domain.RoleAdmin)
	member := e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)

	e.login(t, "ada@example.com", "secret")
	if _, _, err := e.run(t, "", "admin", "users", "list"); !errors.Is(err, views.ErrForbidden) {
		t.Fatalf("member admin err = %v", err)
	}

	e.login(t, "admin@example.com", "root")
	out, _, err := e.run(t, "", "admin", "users", "list", "--filter", "ADA")
	if err != nil {
		t.Fatalf("admin users list: %v", err)
	}
	if !strings.Contains(out, "ada@example.com") || strings.Contains(out, "admin@example.com") {
		t.Fatalf("filtered users = %q", out)
	}
	if _, _, err := e.run(t, "", "admin", "users", "role", idString(member.ID), "librarian"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if u, _ := e.srv.User(member.ID); u.Role != domain.RoleLibrarian {
		t.Fatalf("role = %q", u.Role)
	}
	out, _, err = e.run(t, "", "admin", "stats")
	if err != nil {
		t.Fatalf("admin stats: %v", err)
	}
	if !strings.Contains(out, "Users: 2") {
		t.Fatalf("admin stats = %q", out)
	}
}

func TestThemePreferenceSurvivesLogout(t *testing.T) {
	e := newEnv(t, "")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)

	out, _, err := e.run(t, "", "theme")
	if err != nil || strings.TrimSpace(out) != "light" {
		t.Fatalf("default theme = %q, %v", out, err)
	}
	if _, _, err := e.run(t, "", "theme", "dark"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if _, _, err := e.run(t, "", "theme", "blue"); err == nil {
		t.Fatalf("expected invalid theme to fail")
	}
	e.login(t, "ada@example.com", "secret")
	if _, _, err := e.run(t, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	out, _, err = e.run(t, "", "theme")
	if err != nil || strings.TrimSpace(out) != "dark" {
		t.Fatalf("theme after logout = %q, %v", out, err)
	}
}

func TestRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newEnv(t, "storage: redis\nredisAddr: "+mr.Addr()+"\nredisPrefix: \"cli:\"\n")
	e.srv.AddUser("ada@example.com", "secret", "Ada", domain.RoleMember)
	e.login(t, "ada@example.com", "secret")

	if !mr.Exists("cli:token") {
		t.Fatalf("token should be stored in redis")
	}
	out, _, err := e.run(t, "", "whoami")
	if err != nil || !strings.Contains(out, "Ada") {
		t.Fatalf("whoami = %q, %v", out, err)
	}
	if _, _, err := e.run(t, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if mr.Exists("cli:token") {
		t.Fatalf("logout should remove the redis token")
	}
}

func TestMissingExplicitConfigFails(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "whoami"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected missing config to fail")
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
