package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"libraryclient/pkg/domain"
)

// BookQuery selects a page of the catalog. Zero values are omitted.
type BookQuery struct {
	Page       int
	Limit      int
	Search     string
	CategoryID int64
	Sort       string
}

func (q BookQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	if q.CategoryID > 0 {
		v.Set("categoryId", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}

func (c *Client) ListBooks(ctx context.Context, q BookQuery) (domain.BookListResponse, error) {
	var resp domain.BookListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/books", q.values(), nil, &resp); err != nil {
		return domain.BookListResponse{}, err
	}
	return resp, nil
}

func (c *Client) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	var book domain.Book
	if err := c.doJSON(ctx, http.MethodGet, bookPath(id), nil, nil, &book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (c *Client) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	var created domain.Book
	if err := c.doJSON(ctx, http.MethodPost, "/books", nil, book, &created); err != nil {
		return domain.Book{}, err
	}
	return created, nil
}

func (c *Client) UpdateBook(ctx context.Context, id int64, book domain.Book) (domain.Book, error) {
	var updated domain.Book
	if err := c.doJSON(ctx, http.MethodPut, bookPath(id), nil, book, &updated); err != nil {
		return domain.Book{}, err
	}
	return updated, nil
}

// DeleteBook moves a book to the recycle bin.
func (c *Client) DeleteBook(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, bookPath(id), nil, nil, nil)
}

// Trash lists soft-deleted books.
func (c *Client) Trash(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.doJSON(ctx, http.MethodGet, "/books/trash/all", nil, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) RestoreBook(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodPost, bookPath(id)+"/restore", nil, nil, nil)
}

// PurgeBook deletes a book permanently.
func (c *Client) PurgeBook(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, bookPath(id)+"/permanent", nil, nil, nil)
}

func bookPath(id int64) string {
	return fmt.Sprintf("/books/%d", id)
}
