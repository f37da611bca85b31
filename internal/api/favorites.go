package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"libraryclient/pkg/domain"
)

// ToggleFavorite flips the favorite flag and returns the server's value.
func (c *Client) ToggleFavorite(ctx context.Context, bookID int64) (bool, error) {
	var resp struct {
		IsFavorite bool `json:"isFavorite"`
	}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/favorites/%d", bookID), nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.IsFavorite, nil
}

func (c *Client) FavoriteIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := c.doJSON(ctx, http.MethodGet, "/favorites", nil, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// FavoriteBooks returns the favorites expanded to full book records.
func (c *Client) FavoriteBooks(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	q := url.Values{"expand": {"true"}}
	if err := c.doJSON(ctx, http.MethodGet, "/favorites", q, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}
