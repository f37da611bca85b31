package apitest

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"libraryclient/pkg/domain"
)

type userRecord struct {
	domain.User
	passwordHash string
}

type bookRecord struct {
	domain.Book
	deleted bool
}

// memoryStore holds the fake API state. Callers hold Server.mu.
type memoryStore struct {
	nextID     int64
	users      map[int64]userRecord
	books      map[int64]*bookRecord
	order      []int64
	categories map[int64]domain.Category
	catOrder   []int64
	reviews    map[int64]domain.Review
	favorites  map[int64]map[int64]time.Time
	library    map[int64]map[int64]domain.ReadingStatus
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:      make(map[int64]userRecord),
		books:      make(map[int64]*bookRecord),
		categories: make(map[int64]domain.Category),
		reviews:    make(map[int64]domain.Review),
		favorites:  make(map[int64]map[int64]time.Time),
		library:    make(map[int64]map[int64]domain.ReadingStatus),
	}
}

func (m *memoryStore) newID() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryStore) userByEmail(email string) (userRecord, bool) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return userRecord{}, false
}

func (m *memoryStore) saveBook(b domain.Book) domain.Book {
	if b.ID == 0 {
		b.ID = m.newID()
	}
	if _, exists := m.books[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	if b.CategoryID != nil {
		if c, ok := m.categories[*b.CategoryID]; ok {
			b.Category = &domain.CategoryRef{ID: c.ID, Name: c.Name, Icon: c.Icon}
		}
	}
	now := time.Now().UTC()
	if b.CreatedAt == nil {
		b.CreatedAt = &now
	}
	b.UpdatedAt = &now
	m.books[b.ID] = &bookRecord{Book: b}
	return b
}

// liveBook returns a book that has not been moved to the bin.
func (m *memoryStore) liveBook(id int64) (domain.Book, bool) {
	rec, ok := m.books[id]
	if !ok || rec.deleted {
		return domain.Book{}, false
	}
	return rec.Book, true
}

func (m *memoryStore) booksWhere(keep func(*bookRecord) bool) []domain.Book {
	res := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.books[id]; ok && keep(rec) {
			res = append(res, rec.Book)
		}
	}
	return res
}

func (m *memoryStore) averageRating(bookID int64) float64 {
	total, n := 0, 0
	for _, r := range m.reviews {
		if r.BookID == bookID {
			total += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

func (m *memoryStore) readers(bookID int64) int {
	n := 0
	for _, entries := range m.library {
		if _, ok := entries[bookID]; ok {
			n++
		}
	}
	return n
}

func (m *memoryStore) sortBooks(books []domain.Book, key string) {
	switch key {
	case "-rating", "rating":
		desc := strings.HasPrefix(key, "-")
		sort.SliceStable(books, func(i, j int) bool {
			a, b := m.averageRating(books[i].ID), m.averageRating(books[j].ID)
			if desc {
				return a > b
			}
			return a < b
		})
	case "most_read", "-views":
		sort.SliceStable(books, func(i, j int) bool {
			return m.readers(books[i].ID) > m.readers(books[j].ID)
		})
	default:
		// Newest first.
		sort.SliceStable(books, func(i, j int) bool {
			return books[i].ID > books[j].ID
		})
	}
}

func (m *memoryStore) favoriteIDs(userID int64) []int64 {
	favs := m.favorites[userID]
	ids := make([]int64, 0, len(favs))
	for id := range favs {
		if _, ok := m.liveBook(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return favs[ids[i]].Before(favs[ids[j]]) })
	return ids
}

func (m *memoryStore) categoryList() []domain.Category {
	res := make([]domain.Category, 0, len(m.catOrder))
	for _, id := range m.catOrder {
		c, ok := m.categories[id]
		if !ok {
			continue
		}
		count := 0
		for _, rec := range m.books {
			if !rec.deleted && rec.CategoryID != nil && *rec.CategoryID == id {
				count++
			}
		}
		c.Count = &domain.CategoryCount{Books: count}
		res = append(res, c)
	}
	return res
}

func (m *memoryStore) purgeBook(id int64) {
	delete(m.books, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	for rid, r := range m.reviews {
		if r.BookID == id {
			delete(m.reviews, rid)
		}
	}
	for _, favs := range m.favorites {
		delete(favs, id)
	}
	for _, entries := range m.library {
		delete(entries, id)
	}
}

// AddUser registers a user that can log in with password.
func (s *Server) AddUser(email, password, name string, role domain.UserRole) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{ID: s.data.newID(), Email: email, Name: name, Role: role}
	s.data.users[u.ID] = userRecord{User: u, passwordHash: hashPassword(password)}
	return u
}

// User returns the stored user.
func (s *Server) User(id int64) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	return u.User, ok
}

// AddBook stores a book and returns it with its assigned id.
func (s *Server) AddBook(b domain.Book) domain.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.saveBook(b)
}

// AddBooks stores n books titled with prefix and a counter.
func (s *Server) AddBooks(prefix string, n int) []domain.Book {
	out := make([]domain.Book, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, s.AddBook(domain.Book{Title: prefix + " " + strconv.Itoa(i), Author: "Author " + strconv.Itoa(i)}))
	}
	return out
}

// AddCategory stores a category.
func (s *Server) AddCategory(name string) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Category{ID: s.data.newID(), Name: name}
	s.data.categories[c.ID] = c
	s.data.catOrder = append(s.data.catOrder, c.ID)
	return c
}

// SetFavorite marks bookID as a favorite of userID.
func (s *Server) SetFavorite(userID, bookID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.favorites[userID] == nil {
		s.data.favorites[userID] = make(map[int64]time.Time)
	}
	s.data.favorites[userID][bookID] = time.Now()
}

// Favorites returns the favorite ids of userID.
func (s *Server) Favorites(userID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.favoriteIDs(userID)
}

// SetStatus puts bookID on the reading list of userID.
func (s *Server) SetStatus(userID, bookID int64, status domain.ReadingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.library[userID] == nil {
		s.data.library[userID] = make(map[int64]domain.ReadingStatus)
	}
	s.data.library[userID][bookID] = status
}

// Status returns the reading status of bookID for userID.
func (s *Server) Status(userID, bookID int64) (domain.ReadingStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data.library[userID][bookID]
	return st, ok
}

// AddReview stores a review written by userID.
func (s *Server) AddReview(userID, bookID int64, rating int, content string) domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.addReview(userID, bookID, rating, content)
}

func (m *memoryStore) addReview(userID, bookID int64, rating int, content string) domain.Review {
	now := time.Now().UTC()
	r := domain.Review{ID: m.newID(), BookID: bookID, UserID: userID, Rating: rating, Content: content, CreatedAt: &now}
	m.reviews[r.ID] = r
	return r
}

// Trashed reports whether bookID sits in the recycle bin.
func (s *Server) Trashed(bookID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.books[bookID]
	return ok && rec.deleted
}

// Exists reports whether bookID is stored at all, live or trashed.
func (s *Server) Exists(bookID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.books[bookID]
	return ok
}
