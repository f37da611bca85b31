package domain

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleGuest     UserRole = "GUEST"
	RoleMember    UserRole = "MEMBER"
	RoleLibrarian UserRole = "LIBRARIAN"
	RoleAdmin     UserRole = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

// IsAdmin gates the admin screens. Advisory only; the API enforces access.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// CanManageCatalog gates book and category editing affordances.
func (r UserRole) CanManageCatalog() bool {
	return r == RoleAdmin || r == RoleLibrarian
}

// ParseRole normalizes user input such as "admin" into a UserRole.
func ParseRole(s string) (UserRole, bool) {
	r := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

type ReadingStatus string

const (
	StatusRead       ReadingStatus = "READ"
	StatusReading    ReadingStatus = "READING"
	StatusPlanToRead ReadingStatus = "PLAN_TO_READ"
)

func (s ReadingStatus) Valid() bool {
	switch s {
	case StatusRead, StatusReading, StatusPlanToRead:
		return true
	}
	return false
}

// ParseReadingStatus accepts "reading", "plan-to-read" and the API spelling.
func ParseReadingStatus(s string) (ReadingStatus, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	st := ReadingStatus(v)
	return st, st.Valid()
}

type User struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Role  UserRole `json:"role"`
}

// DisplayName falls back to the email when no name is set.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}

// Session is the client-held record of the authenticated actor.
// IsAuthenticated implies Token is non-empty; User may be nil when the
// persisted identity record could not be decoded.
type Session struct {
	Token           string `json:"-"`
	User            *User  `json:"user,omitempty"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Anonymous returns the unauthenticated session value.
func Anonymous() Session {
	return Session{}
}

// Role returns the session role, GUEST when anonymous or unknown.
func (s Session) Role() UserRole {
	if !s.IsAuthenticated || s.User == nil || !s.User.Role.Valid() {
		return RoleGuest
	}
	return s.User.Role
}

type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type Book struct {
	ID            int64        `json:"id"`
	Title         string       `json:"title"`
	Author        string       `json:"author"`
	ISBN          string       `json:"isbn,omitempty"`
	Description   string       `json:"description,omitempty"`
	CoverImage    string       `json:"coverImage,omitempty"`
	FileURL       string       `json:"fileUrl,omitempty"`
	PublishedYear int          `json:"publishedYear,omitempty"`
	PageCount     int          `json:"pageCount,omitempty"`
	Language      string       `json:"language,omitempty"`
	Status        string       `json:"status,omitempty"`
	CategoryID    *int64       `json:"categoryId,omitempty"`
	Category      *CategoryRef `json:"category,omitempty"`
	UserID        *int64       `json:"userId,omitempty"`
	CreatedAt     *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time   `json:"updatedAt,omitempty"`
}

// CoverURL resolves a relative cover path against the API base URL.
func (b Book) CoverURL(apiBase string) string {
	if b.CoverImage == "" {
		return ""
	}
	if strings.HasPrefix(b.CoverImage, "http") {
		return b.CoverImage
	}
	return strings.TrimRight(apiBase, "/") + b.CoverImage
}

type BookListResponse struct {
	Data  []Book `json:"data"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type CategoryCount struct {
	Books int `json:"books"`
}

type Category struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	NameAr      string         `json:"nameAr,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Description string         `json:"description,omitempty"`
	Count       *CategoryCount `json:"_count,omitempty"`
}

// BookCount returns the number of books reported by the API, zero when absent.
func (c Category) BookCount() int {
	if c.Count == nil {
		return 0
	}
	return c.Count.Books
}

type Review struct {
	ID        int64      `json:"id"`
	BookID    int64      `json:"bookId"`
	UserID    int64      `json:"userId,omitempty"`
	Rating    int        `json:"rating"`
	Content   string     `json:"content"`
	Book      *Book      `json:"book,omitempty"`
	User      *User      `json:"user,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type LibraryEntry struct {
	BookID int64         `json:"bookId"`
	Status ReadingStatus `json:"status"`
	Book   *Book         `json:"book,omitempty"`
}
