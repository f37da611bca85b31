package api

import (
	"context"
	"fmt"
	"net/http"

	"libraryclient/pkg/domain"
)

type reviewPayload struct {
	Rating  int    `json:"rating"`
	Content string `json:"content"`
}

func (c *Client) AddReview(ctx context.Context, bookID int64, rating int, content string) (domain.Review, error) {
	var review domain.Review
	if err := c.doJSON(ctx, http.MethodPost, reviewsPath(bookID), nil, reviewPayload{Rating: rating, Content: content}, &review); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (c *Client) ListReviews(ctx context.Context, bookID int64) ([]domain.Review, error) {
	var reviews []domain.Review
	if err := c.doJSON(ctx, http.MethodGet, reviewsPath(bookID), nil, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (c *Client) GetReview(ctx context.Context, bookID, reviewID int64) (domain.Review, error) {
	var review domain.Review
	if err := c.doJSON(ctx, http.MethodGet, reviewPath(bookID, reviewID), nil, nil, &review); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (c *Client) UpdateReview(ctx context.Context, bookID, reviewID int64, rating int, content string) error {
	return c.doJSON(ctx, http.MethodPut, reviewPath(bookID, reviewID), nil, reviewPayload{Rating: rating, Content: content}, nil)
}

func (c *Client) DeleteReview(ctx context.Context, bookID, reviewID int64) error {
	return c.doJSON(ctx, http.MethodDelete, reviewPath(bookID, reviewID), nil, nil, nil)
}

// MyReviews lists the reviews written by the current user.
func (c *Client) MyReviews(ctx context.Context) ([]domain.Review, error) {
	var reviews []domain.Review
	if err := c.doJSON(ctx, http.MethodGet, "/users/reviews", nil, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func reviewsPath(bookID int64) string {
	return fmt.Sprintf("/books/%d/reviews", bookID)
}

func reviewPath(bookID, reviewID int64) string {
	return fmt.Sprintf("/books/%d/reviews/%d", bookID, reviewID)
}
