package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"libraryclient/pkg/domain"
)

// MyLibrary lists reading-list entries, optionally filtered by status.
func (c *Client) MyLibrary(ctx context.Context, status domain.ReadingStatus) ([]domain.LibraryEntry, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {string(status)}}
	}
	var entries []domain.LibraryEntry
	if err := c.doJSON(ctx, http.MethodGet, "/my-library", q, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadingStatus reports the status of one book. ok is false when the book
// is not on the reading list.
func (c *Client) ReadingStatus(ctx context.Context, bookID int64) (domain.ReadingStatus, bool, error) {
	var resp struct {
		Status *domain.ReadingStatus `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/my-library/%d", bookID), nil, nil, &resp); err != nil {
		return "", false, err
	}
	if resp.Status == nil || *resp.Status == "" {
		return "", false, nil
	}
	return *resp.Status, true, nil
}

func (c *Client) SetReadingStatus(ctx context.Context, bookID int64, status domain.ReadingStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid reading status %q", status)
	}
	payload := map[string]domain.ReadingStatus{"status": status}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/my-library/%d", bookID), nil, payload, nil)
}
