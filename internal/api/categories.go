package api

import (
	"context"
	"fmt"
	"net/http"

	"libraryclient/pkg/domain"
)

// CategoryInput is the writable part of a category.
type CategoryInput struct {
	Name        string `json:"name"`
	NameAr      string `json:"nameAr,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := c.doJSON(ctx, http.MethodGet, "/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	var created domain.Category
	if err := c.doJSON(ctx, http.MethodPost, "/categories", nil, in, &created); err != nil {
		return domain.Category{}, err
	}
	return created, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (domain.Category, error) {
	var updated domain.Category
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/categories/%d", id), nil, in, &updated); err != nil {
		return domain.Category{}, err
	}
	return updated, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/categories/%d", id), nil, nil, nil)
}
