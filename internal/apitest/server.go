// Package apitest runs an in-memory library API for tests.
package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jwt "github.com/golang-jwt/jwt/v5"
	"libraryclient/internal/ratelimit"
	"libraryclient/pkg/domain"
)

const tokenTTL = time.Hour

// Server is a fake library API backed by memory. Routes live under /api.
type Server struct {
	srv    *httptest.Server
	secret []byte

	mu       sync.Mutex
	data     *memoryStore
	failures map[string][]int
	hits     map[string]int
	hook     func(r *http.Request)
	logins   ratelimit.Limiter
}

type userKey struct{}

// New starts a fake API and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:   []byte("apitest-secret"),
		data:     newMemoryStore(),
		failures: make(map[string][]int),
		hits:     make(map[string]int),
	}
	s.srv = httptest.NewServer(s.router())
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the API base, ending in /api.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Fail makes the next request to method and path (relative to /api, no
// query) answer with status. Repeated calls queue further failures.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], status)
}

// Hits counts requests received for method and path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// TotalHits counts every request received.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

// OnRequest installs fn to run before each request is handled. It may block.
func (s *Server) OnRequest(fn func(r *http.Request)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

// LimitLogins throttles login attempts per email. A nil limiter disables it.
func (s *Server) LimitLogins(l ratelimit.Limiter) {
	s.mu.Lock()
	s.logins = l
	s.mu.Unlock()
}

// MintToken signs an access token for userID expiring after ttl. A negative
// ttl yields an expired token.
func (s *Server) MintToken(userID int64, ttl time.Duration) string {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// Token signs a valid access token for the user.
func (s *Server) Token(userID int64) string {
	return s.MintToken(userID, tokenTTL)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.track)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		// Catalog reads are public; a presented token must still be valid.
		r.Group(func(r chi.Router) {
			r.Use(s.identify(false))
			r.Get("/books", s.handleListBooks)
			r.Get("/books/{id}", s.handleGetBook)
			r.Get("/books/{id}/reviews", s.handleListReviews)
			r.Get("/books/{id}/reviews/{reviewId}", s.handleGetReview)
			r.Get("/categories", s.handleCategories)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.identify(true))

			r.Put("/users/profile", s.handleUpdateProfile)
			r.Get("/users/reviews", s.handleMyReviews)

			r.Post("/books", s.handleCreateBook)
			r.Get("/books/trash/all", s.handleTrash)
			r.Put("/books/{id}", s.handleUpdateBook)
			r.Delete("/books/{id}", s.handleDeleteBook)
			r.Post("/books/{id}/restore", s.handleRestoreBook)
			r.Delete("/books/{id}/permanent", s.handlePurgeBook)
			r.Post("/books/{id}/reviews", s.handleAddReview)
			r.Put("/books/{id}/reviews/{reviewId}", s.handleUpdateReview)
			r.Delete("/books/{id}/reviews/{reviewId}", s.handleDeleteReview)

			r.Get("/favorites", s.handleFavorites)
			r.Post("/favorites/{id}", s.handleToggleFavorite)

			r.Get("/my-library", s.handleMyLibrary)
			r.Get("/my-library/{id}", s.handleReadingStatus)
			r.Post("/my-library/{id}", s.handleSetReadingStatus)

			r.Post("/categories", s.handleCreateCategory)
			r.Put("/categories/{id}", s.handleUpdateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)

			r.Group(func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Get("/admin/users", s.handleAdminUsers)
				r.Put("/admin/users/{id}/role", s.handleSetRole)
				r.Delete("/admin/users/{id}", s.handleDeleteUser)
			})
		})
	})
	return r
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api"), "/")
		s.mu.Lock()
		s.hits[key]++
		hook := s.hook
		status := 0
		if queued := s.failures[key]; len(queued) > 0 {
			status = queued[0]
			s.failures[key] = queued[1:]
		}
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identify resolves the bearer token. Without required, requests carrying
// no token pass through anonymously.
func (s *Server) identify(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, present := bearerToken(r); !present && !required {
				next.ServeHTTP(w, r)
				return
			}
			user, ok := s.authorize(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
		})
	}
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "Forbidden resource")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.User{}, false
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.data.users[id]
	if !ok {
		return domain.User{}, false
	}
	return user.User, true
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userKey{}).(domain.User)
	return user
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(r *http.Request, out any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"statusCode": status, "message": msg})
}
