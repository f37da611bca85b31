package views

import (
	"context"
	"strings"
	"sync"

	"libraryclient/internal/api"
	"libraryclient/internal/notify"
	"libraryclient/pkg/domain"
)

const (
	PageSize        = 20
	SuggestionLimit = 5
)

// CatalogQuery selects what the catalog lists.
type CatalogQuery struct {
	Search     string
	CategoryID int64
	Favorites  bool
}

// Catalog is the paginated book list with "load more" semantics.
type Catalog struct {
	api     *api.Client
	session Session
	notes   *notify.Center

	mu      sync.Mutex
	query   CatalogQuery
	page    int
	books   []domain.Book
	hasMore bool
}

func NewCatalog(client *api.Client, session Session, notes *notify.Center) *Catalog {
	return &Catalog{api: client, session: session, notes: notesOrDiscard(notes)}
}

// Reset loads the first page for q, replacing the current list.
// Favorites mode loads every favorite at once and needs a login.
func (c *Catalog) Reset(ctx context.Context, q CatalogQuery) error {
	q.Search = strings.TrimSpace(q.Search)
	if q.Favorites {
		if err := requireLogin(c.session); err != nil {
			return err
		}
		books, err := c.api.FavoriteBooks(ctx)
		if err != nil {
			c.notes.Error("Failed to load books")
			return err
		}
		c.mu.Lock()
		c.query, c.page, c.books, c.hasMore = q, 1, books, false
		c.mu.Unlock()
		return nil
	}

	resp, err := c.api.ListBooks(ctx, api.BookQuery{Page: 1, Limit: PageSize, Search: q.Search, CategoryID: q.CategoryID})
	if err != nil {
		c.notes.Error("Failed to load books")
		return err
	}
	c.mu.Lock()
	c.query, c.page, c.books, c.hasMore = q, 1, resp.Data, len(resp.Data) >= PageSize
	c.mu.Unlock()
	return nil
}

// LoadMore appends the next page. Books already listed are skipped. It is a
// no-op once a short page has been seen.
func (c *Catalog) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasMore || c.query.Favorites {
		c.mu.Unlock()
		return nil
	}
	q, next := c.query, c.page+1
	c.mu.Unlock()

	resp, err := c.api.ListBooks(ctx, api.BookQuery{Page: next, Limit: PageSize, Search: q.Search, CategoryID: q.CategoryID})
	if err != nil {
		c.notes.Error("Failed to load books")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query != q {
		// Reset ran meanwhile.
		return nil
	}
	seen := make(map[int64]struct{}, len(c.books))
	for _, b := range c.books {
		seen[b.ID] = struct{}{}
	}
	for _, b := range resp.Data {
		if _, dup := seen[b.ID]; !dup {
			c.books = append(c.books, b)
			seen[b.ID] = struct{}{}
		}
	}
	c.page = next
	c.hasMore = len(resp.Data) >= PageSize
	return nil
}

func (c *Catalog) Books() []domain.Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Book, len(c.books))
	copy(out, c.books)
	return out
}

func (c *Catalog) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *Catalog) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Suggestions returns up to five books matching text. Blank text yields none
// without a request.
func Suggestions(ctx context.Context, client *api.Client, text string) ([]domain.Book, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	resp, err := client.ListBooks(ctx, api.BookQuery{Page: 1, Limit: SuggestionLimit, Search: text})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
