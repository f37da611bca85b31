package apitest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"libraryclient/internal/util"
	"libraryclient/pkg/domain"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.mu.Lock()
	limiter := s.logins
	user, ok := s.data.userByEmail(strings.TrimSpace(req.Email))
	s.mu.Unlock()
	if limiter != nil && !limiter.Allow(r.Context(), req.Email) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts, please try again later")
		return
	}
	if !ok || !checkPassword(req.Password, user.passwordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  s.Token(user.ID),
		"refreshToken": util.NewID(),
		"user":         user.User,
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data.users[currentUser(r).ID]
	if name := strings.TrimSpace(req.Name); name != "" {
		rec.Name = name
	}
	if req.Password != "" {
		rec.passwordHash = hashPassword(req.Password)
	}
	s.data.users[rec.ID] = rec
	writeJSON(w, http.StatusOK, rec.User)
}

func (s *Server) handleMyReviews(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []domain.Review{}
	for _, rv := range s.sortedReviews() {
		if rv.UserID != uid {
			continue
		}
		if b, ok := s.data.liveBook(rv.BookID); ok {
			rv.Book = &b
		}
		res = append(res, rv)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), 10)
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))
	categoryID, _ := strconv.ParseInt(q.Get("categoryId"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	books := s.data.booksWhere(func(rec *bookRecord) bool {
		if rec.deleted {
			return false
		}
		if categoryID > 0 && (rec.CategoryID == nil || *rec.CategoryID != categoryID) {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(rec.Title), search) &&
			!strings.Contains(strings.ToLower(rec.Author), search) {
			return false
		}
		return true
	})
	s.data.sortBooks(books, q.Get("sort"))

	total := len(books)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, domain.BookListResponse{
		Data:  books[start:end],
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in domain.Book
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		writeError(w, http.StatusBadRequest, "title and author are required")
		return
	}
	in.ID = 0
	uid := currentUser(r).ID
	in.UserID = &uid
	s.mu.Lock()
	created := s.data.saveBook(in)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.booksWhere(func(rec *bookRecord) bool { return rec.deleted }))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.data.liveBook(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var in domain.Book
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.data.liveBook(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	mergeBook(&book, in)
	writeJSON(w, http.StatusOK, s.data.saveBook(book))
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	s.setDeleted(w, r, true)
}

func (s *Server) handleRestoreBook(w http.ResponseWriter, r *http.Request) {
	s.setDeleted(w, r, false)
}

func (s *Server) setDeleted(w http.ResponseWriter, r *http.Request, deleted bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.books[id]
	if !ok || rec.deleted == deleted {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	rec.deleted = deleted
	writeJSON(w, http.StatusOK, rec.Book)
}

func (s *Server) handlePurgeBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.books[id]; !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	s.data.purgeBook(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []domain.Review{}
	for _, rv := range s.sortedReviews() {
		if rv.BookID != bookID {
			continue
		}
		if u, ok := s.data.users[rv.UserID]; ok {
			author := u.User
			rv.User = &author
		}
		res = append(res, rv)
	}
	writeJSON(w, http.StatusOK, res)
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Content string `json:"content"`
}

func (s *Server) handleAddReview(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.liveBook(bookID); !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	writeJSON(w, http.StatusCreated, s.data.addReview(currentUser(r).ID, bookID, req.Rating, req.Content))
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	s.withReview(w, r, false, func(rv domain.Review) {
		writeJSON(w, http.StatusOK, rv)
	})
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	s.withReview(w, r, true, func(rv domain.Review) {
		rv.Rating = req.Rating
		rv.Content = req.Content
		s.data.reviews[rv.ID] = rv
		writeJSON(w, http.StatusOK, rv)
	})
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	s.withReview(w, r, true, func(rv domain.Review) {
		delete(s.data.reviews, rv.ID)
		w.WriteHeader(http.StatusNoContent)
	})
}

// withReview resolves the review in the path and runs fn under the lock.
// Mutations are limited to the author and admins.
func (s *Server) withReview(w http.ResponseWriter, r *http.Request, mutate bool, fn func(domain.Review)) {
	bookID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	reviewID, ok := pathID(r, "reviewId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rv, ok := s.data.reviews[reviewID]
	if !ok || rv.BookID != bookID {
		writeError(w, http.StatusNotFound, "Review not found")
		return
	}
	user := currentUser(r)
	if mutate && rv.UserID != user.ID && user.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	fn(rv)
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.data.favoriteIDs(uid)
	if r.URL.Query().Get("expand") != "true" {
		writeJSON(w, http.StatusOK, ids)
		return
	}
	books := make([]domain.Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := s.data.liveBook(id); ok {
			books = append(books, b)
		}
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	uid := currentUser(r).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.liveBook(bookID); !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	favs := s.data.favorites[uid]
	if favs == nil {
		favs = make(map[int64]time.Time)
		s.data.favorites[uid] = favs
	}
	_, was := favs[bookID]
	if was {
		delete(favs, bookID)
	} else {
		favs[bookID] = time.Now()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isFavorite": !was})
}

func (s *Server) handleMyLibrary(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r).ID
	filter := domain.ReadingStatus(r.URL.Query().Get("status"))
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []domain.LibraryEntry{}
	for _, b := range s.data.booksWhere(func(rec *bookRecord) bool { return !rec.deleted }) {
		st, ok := s.data.library[uid][b.ID]
		if !ok || (filter != "" && st != filter) {
			continue
		}
		book := b
		res = append(res, domain.LibraryEntry{BookID: b.ID, Status: st, Book: &book})
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReadingStatus(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data.library[currentUser(r).ID][bookID]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": st})
}

func (s *Server) handleSetReadingStatus(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req struct {
		Status domain.ReadingStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil || !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	uid := currentUser(r).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.liveBook(bookID); !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	if s.data.library[uid] == nil {
		s.data.library[uid] = make(map[int64]domain.ReadingStatus)
	}
	s.data.library[uid][bookID] = req.Status
	writeJSON(w, http.StatusOK, domain.LibraryEntry{BookID: bookID, Status: req.Status})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.categoryList())
}

type categoryRequest struct {
	Name        string `json:"name"`
	NameAr      string `json:"nameAr"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Category{ID: s.data.newID(), Name: strings.TrimSpace(req.Name), NameAr: req.NameAr, Icon: req.Icon, Description: req.Description}
	s.data.categories[c.ID] = c
	s.data.catOrder = append(s.data.catOrder, c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.categories[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}
	c.Name = strings.TrimSpace(req.Name)
	c.NameAr = req.NameAr
	c.Icon = req.Icon
	c.Description = req.Description
	s.data.categories[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.categories[id]; !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}
	delete(s.data.categories, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]domain.User, 0, len(s.data.users))
	for id := int64(1); id <= s.data.nextID; id++ {
		if u, ok := s.data.users[id]; ok {
			users = append(users, u.User)
		}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		Role domain.UserRole `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil || !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.users[id]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	rec.Role = req.Role
	s.data.users[id] = rec
	writeJSON(w, http.StatusOK, rec.User)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id == currentUser(r).ID {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[id]; !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	delete(s.data.users, id)
	delete(s.data.favorites, id)
	delete(s.data.library, id)
	w.WriteHeader(http.StatusNoContent)
}

// sortedReviews returns reviews newest first. Callers hold s.mu.
func (s *Server) sortedReviews() []domain.Review {
	res := make([]domain.Review, 0, len(s.data.reviews))
	for id := s.data.nextID; id >= 1; id-- {
		if rv, ok := s.data.reviews[id]; ok {
			res = append(res, rv)
		}
	}
	return res
}

func mergeBook(dst *domain.Book, in domain.Book) {
	if in.Title != "" {
		dst.Title = in.Title
	}
	if in.Author != "" {
		dst.Author = in.Author
	}
	if in.ISBN != "" {
		dst.ISBN = in.ISBN
	}
	if in.Description != "" {
		dst.Description = in.Description
	}
	if in.CoverImage != "" {
		dst.CoverImage = in.CoverImage
	}
	if in.Language != "" {
		dst.Language = in.Language
	}
	if in.PublishedYear != 0 {
		dst.PublishedYear = in.PublishedYear
	}
	if in.PageCount != 0 {
		dst.PageCount = in.PageCount
	}
	if in.CategoryID != nil {
		dst.CategoryID = in.CategoryID
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
